package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	pruneBackupsOlderThan time.Duration
	pruneForce            bool
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect and maintain the evidence store",
}

var storageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print total storage size and evidence count",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		stats, err := a.store.StorageStats(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("total_size_bytes: %d\nevidence_count: %d\nlast_updated: %s\n",
			stats.TotalSizeBytes, stats.EvidenceCount, stats.LastUpdated.Format(time.RFC3339))
		return nil
	},
}

// storageCleanupCmd only removes reanalyze backups, and only when the
// operator opts in with --prune-backups-older-than; backups are kept
// indefinitely otherwise (resolved Open Question, see DESIGN.md).
var storageCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove reanalyze backups older than a given age (no-op unless --prune-backups-older-than is set)",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		if pruneBackupsOlderThan <= 0 {
			if !quiet {
				fmt.Println("no --prune-backups-older-than given; backups are kept indefinitely by default")
			}
			return nil
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		deleted, err := a.store.PruneBackups(context.Background(), pruneBackupsOlderThan)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("deleted %d backup artifacts older than %s\n", deleted, pruneBackupsOlderThan)
		}
		return nil
	},
}

var storagePruneCmd = &cobra.Command{
	Use:   "prune <case-id>",
	Short: "Unlink a case's evidence, deleting raw+derived artifacts with no remaining case reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		caseID := args[0]
		dryRun := !pruneForce
		report, err := a.store.Prune(context.Background(), caseID, dryRun)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("case %s: %d evidence items unlinked, %d deleted (dry_run=%v)\n",
				caseID, len(report.UnlinkedSHA256s), len(report.DeletedSHA256s), report.DryRun)
			if dryRun {
				fmt.Println("pass --force to actually delete; this was a dry run")
			}
		}
		return nil
	},
}

func init() {
	storageCleanupCmd.Flags().DurationVar(&pruneBackupsOlderThan, "prune-backups-older-than", 0, "delete analysis backups older than this duration (e.g. 720h); default 0 disables pruning")
	storagePruneCmd.Flags().BoolVar(&pruneForce, "force", false, "actually delete; without this flag, prune only reports what would be deleted")
	storageCmd.AddCommand(storageStatsCmd, storageCleanupCmd, storagePruneCmd)
}
