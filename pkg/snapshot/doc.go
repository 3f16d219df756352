// Package snapshot drives the Microsoft Graph configuration snapshot API.
//
// # Overview
//
// A configuration snapshot is an asynchronous export job. The service
// accepts a list of resource types, runs the export in the background and
// exposes the result as a downloadable JSON document once the job reaches
// a usable status.
//
// # Core Concepts
//
// ## Jobs
//
// An ExportJob moves through notStarted and running to one of succeeded,
// partiallySuccessful, failed or cancelled. Only succeeded and
// partiallySuccessful jobs carry a result location.
//
// ## Conflicts
//
// The service answers 409 when a job cannot be created, typically because
// another export is in flight. The Orchestrator adopts the first active
// job it finds, or retries once with a fresh display name.
//
// ## Ledger
//
// A JobLedger remembers created and adopted jobs so that cleanup can be
// restricted to jobs this tool owns.
//
// # Usage
//
//	api := snapshot.NewGraphClient(tokens)
//	orch := snapshot.NewOrchestrator(api, snapshot.WithLogger(logger))
//
//	id, location, err := orch.CreateAndWait(ctx, snapshot.SnapshotSpec{
//	    DisplayName: "GitBackup",
//	    Description: "Automated Backup",
//	    Resources:   []string{"microsoft.entra.conditionalaccesspolicy"},
//	}, snapshot.DefaultPollInterval, snapshot.DefaultPollTimeout)
//
//	raw, err := api.FetchSnapshot(ctx, location)
//
// ## Cleaning up
//
//	ids, err := snapshot.NewCleaner(api).Cleanup(ctx, snapshot.CleanupOptions{
//	    OlderThanDays: 7,
//	    DryRun:        true,
//	})
package snapshot
