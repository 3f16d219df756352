package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

// SnapshotSpec configures a snapshot export job.
type SnapshotSpec struct {
	// DisplayName is the requested job name. It is sanitized and suffixed
	// with a timestamp before being sent.
	DisplayName string `json:"displayName" yaml:"display_name"`

	// Description is sent as-is.
	Description string `json:"description" yaml:"description"`

	// Resources are the resource types to export, e.g.
	// "microsoft.exchange.accepteddomain".
	Resources []string `json:"resources" yaml:"resources"`
}

// Validate reports every problem with the snapshot request.
func (s *SnapshotSpec) Validate() error {
	var errs []error

	if len(s.Resources) == 0 {
		errs = append(errs, errors.New("resources is required"))
	}
	for i, r := range s.Resources {
		if err := ValidateResourceID(r); err != nil {
			errs = append(errs, fmt.Errorf("resources[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// ValidateResourceID checks that id has the form vendor.workload.resource.
func ValidateResourceID(id string) error {
	parts := strings.Split(id, ".")
	if len(parts) < 3 {
		return fmt.Errorf("resource type %q must have at least three dot-separated segments", id)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("resource type %q has an empty segment", id)
		}
	}
	return nil
}

// CleanupOptions configures JobCleanup.
type CleanupOptions struct {
	// OlderThanDays selects jobs created strictly before now minus this many days.
	OlderThanDays int

	// Statuses restricts deletion to these statuses. Empty means
	// DefaultCleanupStatuses.
	Statuses []JobStatus

	// DryRun reports matches without deleting.
	DryRun bool

	// MaxJobs bounds how many jobs are listed.
	MaxJobs int

	// OwnedOnly restricts deletion to jobs recorded as owned in the ledger.
	OwnedOnly bool
}

// DefaultCleanupStatuses are the statuses cleaned up when none are given.
var DefaultCleanupStatuses = []JobStatus{StatusSucceeded, StatusFailed, StatusCancelled}

// Cleanup defaults.
const (
	DefaultOlderThanDays = 7
	DefaultMaxJobs       = 500
)

// Validate reports every problem with the cleanup options.
func (o *CleanupOptions) Validate() error {
	var errs []error
	if o.OlderThanDays < 0 {
		errs = append(errs, errors.New("older-than-days must not be negative"))
	}
	if o.MaxJobs < 0 {
		errs = append(errs, errors.New("max-jobs must not be negative"))
	}
	for _, s := range o.Statuses {
		if s == StatusUnknown {
			errs = append(errs, errors.New("unknown status in cleanup filter"))
		}
	}
	return errors.Join(errs...)
}

// ParseStatuses parses a comma-separated status list.
func ParseStatuses(csv string) ([]JobStatus, error) {
	var out []JobStatus
	seen := make(map[JobStatus]bool)
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s := ParseJobStatus(part)
		if s == StatusUnknown {
			return nil, ErrValidation(fmt.Sprintf("unknown job status %q", part))
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}
