package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

func newCleanupCmd(a *app) *cobra.Command {
	var (
		olderThanDays int
		statuses      []string
		maxJobs       int
		dryRun        bool
		ownedOnly     bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old snapshot jobs by age and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := snapshot.CleanupOptions{
				OlderThanDays: a.cfg.Cleanup.OlderThanDays,
				MaxJobs:       a.cfg.Cleanup.MaxJobs,
				DryRun:        dryRun,
				OwnedOnly:     ownedOnly,
			}
			if cmd.Flags().Changed("older-than-days") {
				opts.OlderThanDays = olderThanDays
			}
			if cmd.Flags().Changed("max-jobs") {
				opts.MaxJobs = maxJobs
			}

			var err error
			if cmd.Flags().Changed("statuses") {
				opts.Statuses, err = snapshot.ParseStatuses(strings.Join(statuses, ","))
			} else {
				opts.Statuses, err = a.cfg.CleanupStatuses()
			}
			if err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return snapshot.ErrValidation(err.Error()).WithOperation("cleanup")
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			ledger, err := a.ledger()
			if err != nil {
				return err
			}

			cleaner := snapshot.NewCleaner(client,
				snapshot.WithCleanerLogger(a.logger.Named("cleanup")),
				snapshot.WithCleanerClock(a.clock),
				snapshot.WithCleanerLedger(ledger),
			)
			ids, err := cleaner.Cleanup(cmd.Context(), opts)
			for _, id := range ids {
				fmt.Fprintln(a.stdout, id)
			}
			if err != nil {
				return err
			}

			label := "deleted"
			if dryRun {
				label = "matched (dry run)"
			}
			a.logger.Info("snapshot jobs "+label, zap.Int("count", len(ids)))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&olderThanDays, "older-than-days", snapshot.DefaultOlderThanDays, "delete jobs older than this many days")
	f.StringSliceVar(&statuses, "statuses", []string{"succeeded", "failed", "cancelled"}, "statuses eligible for deletion")
	f.IntVar(&maxJobs, "max-jobs", snapshot.DefaultMaxJobs, "maximum number of jobs to inspect")
	f.BoolVar(&dryRun, "dry-run", false, "list jobs that would be deleted without deleting them")
	f.BoolVar(&ownedOnly, "owned-only", false, "only delete jobs created by this tool")
	return cmd
}
