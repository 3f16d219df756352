package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/utcm-export/pkg/sanitize"
)

// Polling defaults.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollTimeout  = 7200 * time.Second
)

// createState is a step of the job creation protocol.
type createState int

const (
	stateIdle createState = iota
	stateCreating
	stateConflict
	stateAdopting
	stateRetrying
	stateCreated
	stateFailed
)

func (s createState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCreating:
		return "creating"
	case stateConflict:
		return "conflict"
	case stateAdopting:
		return "adopting"
	case stateRetrying:
		return "retrying"
	case stateCreated:
		return "created"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// createRun carries one Create call through its states.
type createRun struct {
	state      createState
	base       string
	request    CreateRequest
	job        *ExportJob
	adopted    bool
	initialErr error
	err        error
}

// Orchestrator creates snapshot jobs and waits for them to finish.
type Orchestrator struct {
	api    JobAPI
	clock  clockwork.Clock
	logger *zap.Logger
	ledger JobLedger
}

// OrchestratorOption configures the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithClock sets the clock used for display names, deadlines and sleeping.
func WithClock(c clockwork.Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithLedger sets the job ledger.
func WithLedger(l JobLedger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.ledger = l
	}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(api JobAPI, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		api:    api,
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
		ledger: NewMemoryJobLedger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create starts a snapshot job for spec.
//
// On a 409 conflict the first active job of the first listing page is
// adopted. If none is active, creation is retried once with a fresh
// display name; a failed retry returns a *CreateRetryError.
func (o *Orchestrator) Create(ctx context.Context, spec SnapshotSpec) (*ExportJob, error) {
	if err := spec.Validate(); err != nil {
		return nil, ErrValidation(err.Error()).WithOperation("create")
	}

	run := &createRun{
		state: stateIdle,
		base:  spec.DisplayName,
		request: CreateRequest{
			DisplayName: sanitize.DisplayName(spec.DisplayName, o.clock.Now()),
			Description: spec.Description,
			Resources:   spec.Resources,
		},
	}

	for run.state != stateCreated && run.state != stateFailed {
		prev := run.state
		switch run.state {
		case stateIdle:
			run.state = stateCreating
		case stateCreating:
			o.create(ctx, run)
		case stateConflict:
			o.resolveConflict(ctx, run)
		case stateAdopting:
			o.adopt(run)
		case stateRetrying:
			o.retry(ctx, run)
		}
		o.logger.Debug("create transition",
			zap.Stringer("from", prev),
			zap.Stringer("to", run.state))
	}

	if run.state == stateFailed {
		return nil, run.err
	}

	o.record(ctx, run)
	return run.job, nil
}

func (o *Orchestrator) create(ctx context.Context, run *createRun) {
	o.logger.Info("creating snapshot job",
		zap.Int("resources", len(run.request.Resources)),
		zap.String("displayName", run.request.DisplayName))

	job, err := o.api.CreateSnapshot(ctx, run.request)
	switch {
	case err == nil:
		o.logger.Info("created snapshot job", zap.String("jobId", job.ID))
		run.job = job
		run.state = stateCreated
	case IsCategory(err, ErrCategoryConflict):
		o.logger.Warn("createSnapshot returned 409 conflict", zap.Error(err))
		run.initialErr = err
		run.state = stateConflict
	default:
		run.err = err
		run.state = stateFailed
	}
}

func (o *Orchestrator) resolveConflict(ctx context.Context, run *createRun) {
	page, err := o.api.ListJobs(ctx, "")
	if err != nil {
		run.err = fmt.Errorf("listing active jobs after 409 conflict: %w", err)
		run.state = stateFailed
		return
	}

	for i := range page.Jobs {
		job := page.Jobs[i]
		if !job.Status.IsActive() {
			continue
		}
		if job.ID == "" {
			o.logger.Warn("skipping active job without id")
			continue
		}
		run.job = &job
		run.state = stateAdopting
		return
	}
	run.state = stateRetrying
}

func (o *Orchestrator) adopt(run *createRun) {
	o.logger.Info("reusing active snapshot job after 409 conflict",
		zap.String("jobId", run.job.ID),
		zap.String("status", run.job.RawStatus))
	run.adopted = true
	run.state = stateCreated
}

func (o *Orchestrator) retry(ctx context.Context, run *createRun) {
	first := run.request.DisplayName
	now := o.clock.Now()
	name := sanitize.DisplayName(run.base, now)
	if name == first {
		// Same second as the first attempt.
		name = sanitize.DisplayName(run.base, now.Add(time.Second))
	}

	req := run.request
	req.DisplayName = name
	o.logger.Info("retrying createSnapshot with unique displayName", zap.String("displayName", name))

	job, err := o.api.CreateSnapshot(ctx, req)
	if err != nil {
		run.err = &CreateRetryError{
			InitialError:     run.initialErr,
			RetryError:       err,
			RetryDisplayName: name,
		}
		run.state = stateFailed
		return
	}

	o.logger.Info("created snapshot job on retry", zap.String("jobId", job.ID))
	run.request = req
	run.job = job
	run.state = stateCreated
}

// record ledgers the job. Failures are logged only.
func (o *Orchestrator) record(ctx context.Context, run *createRun) {
	rec := JobRecord{
		ID:          run.job.ID,
		DisplayName: run.request.DisplayName,
		Resources:   run.request.Resources,
		CreatedAt:   o.clock.Now().UTC(),
		Owned:       !run.adopted,
	}
	if run.adopted {
		rec.DisplayName = run.job.DisplayName
		rec.Resources = run.job.Resources
		if run.job.CreatedAt != nil {
			rec.CreatedAt = *run.job.CreatedAt
		}
	}
	if err := o.ledger.Save(ctx, rec); err != nil {
		o.logger.Warn("failed to record snapshot job", zap.String("jobId", rec.ID), zap.Error(err))
	}
}

// Poll waits until job id reaches a terminal status or timeout elapses.
//
// Succeeded and partially successful jobs are returned. Failed and
// cancelled jobs return an ErrCategoryJobFailed error carrying the payload.
func (o *Orchestrator) Poll(ctx context.Context, id string, interval, timeout time.Duration) (*ExportJob, error) {
	deadline := o.clock.Now().Add(timeout)

	for {
		job, err := o.api.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		o.logger.Info("snapshot job status", zap.String("jobId", id), zap.String("status", job.RawStatus))

		switch {
		case job.Status.IsUsable():
			if job.Status == StatusPartiallySuccessful {
				o.logger.Warn("snapshot job partially succeeded; some resources may be missing",
					zap.String("jobId", id))
			}
			return job, nil
		case job.Status.IsFailed():
			return nil, ErrJobFailed(job).WithOperation("poll")
		}

		if !o.clock.Now().Before(deadline) {
			return nil, ErrTimeout(fmt.Sprintf("timed out waiting for snapshot job %s after %s", id, timeout)).
				WithOperation("poll").
				WithJob(id).
				WithDetail("last_status", job.RawStatus)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-o.clock.After(interval):
		}
	}
}

// CreateAndWait creates a job, waits for it and returns its id and result location.
func (o *Orchestrator) CreateAndWait(ctx context.Context, spec SnapshotSpec, interval, timeout time.Duration) (string, string, error) {
	job, err := o.Create(ctx, spec)
	if err != nil {
		return "", "", err
	}

	done, err := o.Poll(ctx, job.ID, interval, timeout)
	if err != nil {
		return job.ID, "", err
	}
	if done.ResultLocation == "" {
		return job.ID, "", ErrMalformed(fmt.Sprintf("snapshot job %s succeeded but 'resourceLocation' is missing", job.ID)).
			WithOperation("create_and_wait").
			WithJob(job.ID).
			WithDetail("payload", done.Raw)
	}

	o.logger.Info("snapshot job completed", zap.String("jobId", job.ID))
	return job.ID, done.ResultLocation, nil
}
