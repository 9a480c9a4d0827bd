package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

var (
	reanalyzeCaseID       string
	reanalyzeEvidenceType string
	reanalyzeDryRun       bool
)

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze",
	Short: "Force re-analysis of a case's evidence, preserving prior analysis.v1.json as a backup",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if reanalyzeCaseID == "" {
			return fmt.Errorf("--case-id is required")
		}
		report, err := a.orchestrator.Reanalyze(context.Background(), reanalyzeCaseID, domain.EvidenceType(reanalyzeEvidenceType), reanalyzeDryRun)
		if err != nil {
			return err
		}
		if !quiet {
			verb := "re-analyzed"
			if reanalyzeDryRun {
				verb = "would re-analyze"
			}
			fmt.Printf("%s %d evidence items (%d failed)\n", verb, report.Succeeded, report.Failed)
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d evidence items failed reanalysis", report.Failed)
		}
		return nil
	},
}

func init() {
	reanalyzeCmd.Flags().StringVar(&reanalyzeCaseID, "case-id", "", "case ID to reanalyze (required)")
	reanalyzeCmd.Flags().StringVar(&reanalyzeEvidenceType, "evidence-type", "", "only reanalyze evidence of this type (default: all)")
	reanalyzeCmd.Flags().BoolVar(&reanalyzeDryRun, "dry-run", false, "list affected evidence without re-running analysis")
	reanalyzeCmd.MarkFlagRequired("case-id")
}
