package snapshot

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// JobStatus is the canonical status of a snapshot job.
type JobStatus string

const (
	StatusNotStarted          JobStatus = "notStarted"
	StatusRunning             JobStatus = "running"
	StatusSucceeded           JobStatus = "succeeded"
	StatusPartiallySuccessful JobStatus = "partiallySuccessful"
	StatusFailed              JobStatus = "failed"
	StatusCancelled           JobStatus = "cancelled"
	StatusUnknown             JobStatus = "unknown"
)

// ParseJobStatus maps a remote status string to a JobStatus.
// Matching is case-insensitive and accepts both "cancelled" and "canceled".
func ParseJobStatus(raw string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "notstarted":
		return StatusNotStarted
	case "running":
		return StatusRunning
	case "succeeded":
		return StatusSucceeded
	case "partiallysuccessful":
		return StatusPartiallySuccessful
	case "failed":
		return StatusFailed
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// IsActive reports whether the job is still pending on the remote side.
func (s JobStatus) IsActive() bool {
	return s == StatusNotStarted || s == StatusRunning
}

// IsUsable reports whether the job finished with a result location.
// A partially successful job still carries a usable export.
func (s JobStatus) IsUsable() bool {
	return s == StatusSucceeded || s == StatusPartiallySuccessful
}

// IsFailed reports whether the job ended without a usable result.
func (s JobStatus) IsFailed() bool {
	return s == StatusFailed || s == StatusCancelled
}

// IsTerminal reports whether the job will not change status anymore.
func (s JobStatus) IsTerminal() bool {
	return s.IsUsable() || s.IsFailed()
}

// ExportJob is a remote snapshot job as seen by this client.
type ExportJob struct {
	// ID is the opaque job identifier.
	ID string `json:"id"`

	// DisplayName is the name given at creation.
	DisplayName string `json:"displayName,omitempty"`

	// Description is the free-form description given at creation.
	Description string `json:"description,omitempty"`

	// Resources are the resource types included in the export.
	Resources []string `json:"resources,omitempty"`

	// Status is the canonical status.
	Status JobStatus `json:"status"`

	// RawStatus is the status string exactly as returned by the service.
	RawStatus string `json:"rawStatus,omitempty"`

	// CreatedAt is nil when the service did not return a parseable time.
	CreatedAt *time.Time `json:"createdDateTime,omitempty"`

	// CompletedAt is set once the job finished.
	CompletedAt *time.Time `json:"completedDateTime,omitempty"`

	// ResultLocation points to the raw export document.
	// Only present for succeeded and partially successful jobs.
	ResultLocation string `json:"resourceLocation,omitempty"`

	// Raw is the full remote payload, kept for diagnostics.
	Raw map[string]interface{} `json:"-"`
}

// JobPage is one page of a job listing.
type JobPage struct {
	Jobs     []ExportJob
	NextLink string
}

// CreateRequest is the body of a createSnapshot call.
type CreateRequest struct {
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	Resources   []string `json:"resources"`
}

// Organization is the minimal tenant identity used by preflight checks.
type Organization struct {
	ID          string
	DisplayName string
}

// jobFromRaw builds an ExportJob from a decoded job object.
// The ID is taken from "jobId" and falls back to "id"; it may be empty.
func jobFromRaw(raw map[string]interface{}) ExportJob {
	job := ExportJob{
		ID:             stringField(raw, "jobId"),
		DisplayName:    stringField(raw, "displayName"),
		Description:    stringField(raw, "description"),
		RawStatus:      stringField(raw, "status"),
		ResultLocation: stringField(raw, "resourceLocation"),
		CreatedAt:      timeField(raw, "createdDateTime"),
		CompletedAt:    timeField(raw, "completedDateTime"),
		Raw:            raw,
	}
	if job.ID == "" {
		job.ID = stringField(raw, "id")
	}
	job.Status = ParseJobStatus(job.RawStatus)

	if list, ok := raw["resources"].([]interface{}); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				job.Resources = append(job.Resources, s)
			}
		}
	}
	return job
}

// decodeJob decodes a single job response and requires an ID.
func decodeJob(body []byte, op string) (*ExportJob, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, ErrMalformed("snapshot job response is not a JSON object").WithOperation(op).WithCause(err)
	}

	job := jobFromRaw(raw)
	if job.ID == "" {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, ErrMalformed("snapshot job response did not include 'jobId' or 'id'").
			WithOperation(op).
			WithDetail("keys", keys)
	}
	return &job, nil
}

func stringField(raw map[string]interface{}, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

// ParseGraphTime parses a Graph timestamp, returning nil when it is absent
// or unparseable. Times without a zone are taken as UTC.
func ParseGraphTime(value string) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	t, err := iso8601.ParseString(value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func timeField(raw map[string]interface{}, key string) *time.Time {
	return ParseGraphTime(stringField(raw, key))
}
