package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/utcm-export/pkg/catalog"
	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

func newCheckCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify credentials, tenant access and the snapshot API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.credentials()
			if err != nil {
				return err
			}
			client := a.newJobClient(a.cfg, creds, a.logger)

			resources, err := catalog.Load(a.fs, a.cfg.Job.ResourcesFile)
			if err != nil {
				a.logger.Warn("resource catalog not loaded", zap.Error(err))
			}

			report := snapshot.RunChecks(cmd.Context(), []snapshot.Validator{
				snapshot.NewTokenAcquisitionValidator(creds, a.cfg.Graph.Scopes...),
				snapshot.NewTenantReachableValidator(creds),
				snapshot.NewJobsAPIReachableValidator(client),
				snapshot.NewResourcesValidator(resources),
			})

			if jsonOutput {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode preflight report: %w", err)
				}
				fmt.Fprintln(a.stdout, string(data))
			} else {
				printReport(a, report)
			}

			if !report.IsValid() {
				return errChecksFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func printReport(a *app, report *snapshot.Report) {
	fmt.Fprintln(a.stdout, "=== Preflight Report ===")
	fmt.Fprintf(a.stdout, "Valid: %t\n", report.IsValid())
	fmt.Fprintf(a.stdout, "Checks: %d passed, %d failed, %d skipped\n",
		report.Summary.PassedChecks,
		report.Summary.FailedChecks,
		report.Summary.SkippedChecks)

	for _, check := range report.Checks {
		status := "✓"
		switch check.Status {
		case snapshot.CheckStatusFailed:
			status = "✗"
		case snapshot.CheckStatusSkipped:
			status = "○"
		}

		fmt.Fprintf(a.stdout, "\n%s %s [%s]\n", status, check.Name, check.Severity)
		if orgs, ok := check.Evidence["organizations"].([]string); ok {
			for _, org := range orgs {
				fmt.Fprintf(a.stdout, "  Tenant: %s\n", org)
			}
		}
		if check.Status == snapshot.CheckStatusFailed {
			if msg, ok := check.Evidence["error"].(string); ok {
				fmt.Fprintf(a.stdout, "  Error: %s\n", msg)
			}
			if check.Remediation != "" {
				fmt.Fprintf(a.stdout, "  Remediation: %s\n", check.Remediation)
			}
		}
	}
}
