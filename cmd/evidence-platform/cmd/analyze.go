package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

var (
	analyzeCaseID string
	analyzeType   string
	analyzeForce  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze SHA256",
	Short: "Run the analyzer (C4) over a single evidence item, identified by its sha256",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := context.Background()
		sha := args[0]

		if err := a.orchestrator.AnalyzeItem(ctx, sha, domain.EvidenceType(analyzeType), analyzeForce); err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("analyzed %s\n", sha)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCaseID, "case-id", "", "case the evidence is linked to (accepted for CLI parity; analysis is keyed by sha256, not case)")
	analyzeCmd.Flags().StringVar(&analyzeType, "type", "", "override mime-based evidence type classification")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "re-analyze even if analysis.v1.json already exists")
}
