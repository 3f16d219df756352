package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

func newListCmd(a *app) *cobra.Command {
	var (
		maxJobs int
		output  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshot jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			ledger, err := a.ledger()
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("max-jobs") {
				maxJobs = a.cfg.Cleanup.MaxJobs
			}
			cleaner := snapshot.NewCleaner(client,
				snapshot.WithCleanerLogger(a.logger.Named("cleanup")),
				snapshot.WithCleanerClock(a.clock),
				snapshot.WithCleanerLedger(ledger),
			)
			jobs, err := cleaner.List(cmd.Context(), maxJobs)
			if err != nil {
				return fmt.Errorf("failed to list snapshot jobs: %w", err)
			}

			records, err := ledger.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read job ledger: %w", err)
			}
			owned := make(map[string]bool, len(records))
			for _, rec := range records {
				owned[rec.ID] = rec.Owned
			}

			if len(jobs) == 0 {
				fmt.Fprintln(a.stdout, "No snapshot jobs found")
				return nil
			}

			switch output {
			case "json":
				data, err := json.MarshalIndent(jobs, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode snapshot jobs: %w", err)
				}
				fmt.Fprintln(a.stdout, string(data))
			case "table":
				w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tOWNED\tDISPLAY NAME")
				for _, job := range jobs {
					created := "-"
					if job.CreatedAt != nil {
						created = job.CreatedAt.UTC().Format("2006-01-02 15:04:05")
					}
					status := job.RawStatus
					if status == "" {
						status = string(job.Status)
					}
					ownership := "-"
					if isOwned, ok := owned[job.ID]; ok {
						ownership = "adopted"
						if isOwned {
							ownership = "yes"
						}
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						job.ID,
						status,
						created,
						ownership,
						truncate(job.DisplayName, 40),
					)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown output format: %s", output)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxJobs, "max-jobs", snapshot.DefaultMaxJobs, "maximum number of jobs to read")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	return cmd
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
