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
	ingestCaseID string
	ingestActor  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest one or more files into content-addressed storage, optionally linking to a case",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := context.Background()

		var items []pipeline.IngestItem
		var closers []*os.File
		defer func() {
			for _, f := range closers {
				f.Close()
			}
		}()
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			closers = append(closers, f)
			items = append(items, pipeline.IngestItem{Reader: f, Filename: filepath.Base(path)})
		}

		report, _, err := a.orchestrator.Ingest(ctx, ingestCaseID, ingestActor, items)
		if err != nil {
			return err
		}
		if !quiet {
			for i, res := range report.Results {
				if res.Err != nil {
					fmt.Printf("failed %s: %v\n", args[i], res.Err)
					continue
				}
				fmt.Printf("ingested %s -> %s\n", args[i], res.SHA256)
			}
			fmt.Printf("ingest: %d succeeded, %d failed\n", report.Succeeded, report.Failed)
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d files failed to ingest", report.Failed, len(items))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCaseID, "case-id", "", "case ID to link ingested evidence to")
	ingestCmd.Flags().StringVar(&ingestActor, "actor", "cli", "actor recorded in the chain of custody")
}
