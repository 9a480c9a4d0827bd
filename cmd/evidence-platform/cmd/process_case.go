package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/pipeline"
)

var (
	processCaseID    string
	processCaseType  string
	processActor     string
	processForce     bool
	processAIResolve bool
	processSkipPkg   bool
)

var processCaseCmd = &cobra.Command{
	Use:   "process-case DIR",
	Short: "Run the full Ingest->Analyze->Correlate->Summarize pipeline over every file in DIR",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if processCaseID == "" {
			return fmt.Errorf("--case-id is required")
		}
		ctx := context.Background()
		dir := args[0]

		paths, err := walkEvidenceDir(dir)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no files found under %s", dir)
		}

		var items []pipeline.IngestItem
		var closers []*os.File
		defer func() {
			for _, f := range closers {
				f.Close()
			}
		}()
		for _, path := range paths {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			closers = append(closers, f)
			items = append(items, pipeline.IngestItem{Reader: f, Filename: filepath.Base(path)})
		}

		report, err := a.orchestrator.ProcessCase(ctx, processCaseID, processActor, items, processForce, processAIResolve, processCaseType)
		if err != nil {
			return err
		}
		failures := 0
		if !quiet {
			if report.Ingest != nil {
				fmt.Printf("ingest: %d succeeded, %d failed\n", report.Ingest.Succeeded, report.Ingest.Failed)
				failures += report.Ingest.Failed
			}
			if report.Analyze != nil {
				fmt.Printf("analyze: %d succeeded, %d failed\n", report.Analyze.Succeeded, report.Analyze.Failed)
				failures += report.Analyze.Failed
			}
			if report.Correlate != nil {
				fmt.Printf("correlate: %d succeeded, %d failed\n", report.Correlate.Succeeded, report.Correlate.Failed)
				failures += report.Correlate.Failed
			}
			if report.Summarize != nil {
				fmt.Printf("summarize: %d succeeded, %d failed\n", report.Summarize.Succeeded, report.Summarize.Failed)
				failures += report.Summarize.Failed
			}
		} else {
			failures = stageFailures(report.Ingest) + stageFailures(report.Analyze) + stageFailures(report.Correlate) + stageFailures(report.Summarize)
		}

		if !processSkipPkg && !quiet {
			fmt.Println("packaging is an external collaborator (§6); run the separate package tool against this case-id to produce a client deliverable")
		}

		if failures > 0 {
			return fmt.Errorf("process-case completed with %d item-level failures; see stage report above", failures)
		}
		return nil
	},
}

// walkEvidenceDir collects every regular file under dir, recursing into
// subdirectories, for a directory-of-mixed-evidence ingest (§1).
func walkEvidenceDir(dir string) ([]string, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return paths, nil
}

func stageFailures(s *pipeline.StageReport) int {
	if s == nil {
		return 0
	}
	return s.Failed
}

func init() {
	processCaseCmd.Flags().StringVar(&processCaseID, "case-id", "", "case ID to process (required)")
	processCaseCmd.Flags().StringVar(&processCaseType, "case-type", "", "case type selecting the executive-summary prompt variant (e.g. employment, contract)")
	processCaseCmd.Flags().StringVar(&processActor, "actor", "cli", "actor recorded in the chain of custody")
	processCaseCmd.Flags().BoolVar(&processForce, "force", false, "re-analyze items that already have an analysis")
	processCaseCmd.Flags().BoolVar(&processAIResolve, "ai-resolve", false, "enable AI-assisted resolution of ambiguous person entities during correlation (cost-bounded)")
	processCaseCmd.Flags().BoolVar(&processSkipPkg, "skip-package", false, "suppress the packaging reminder printed after the pipeline run")
	processCaseCmd.MarkFlagRequired("case-id")
}
