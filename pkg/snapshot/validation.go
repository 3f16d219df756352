package snapshot

import (
	"context"
	"fmt"
	"time"
)

// Severity indicates the severity level of a preflight check.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 2
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// CheckStatus indicates the result of a preflight check.
type CheckStatus string

const (
	CheckStatusPassed  CheckStatus = "passed"
	CheckStatusFailed  CheckStatus = "failed"
	CheckStatusSkipped CheckStatus = "skipped"
)

// Check is a single preflight check result.
type Check struct {
	// ID is a unique identifier for this check type.
	ID string `json:"id"`

	// Name is a human-readable name for the check.
	Name string `json:"name"`

	// Status is the check result.
	Status CheckStatus `json:"status"`

	// Severity indicates how serious a failure would be.
	Severity Severity `json:"severity"`

	// Evidence contains data supporting the check result.
	Evidence map[string]interface{} `json:"evidence,omitempty"`

	// Remediation contains steps to fix a failed check.
	Remediation string `json:"remediation,omitempty"`

	// Duration is how long the check took to run.
	Duration time.Duration `json:"duration"`
}

// Report contains the results of a preflight run.
type Report struct {
	Checks    []Check       `json:"checks"`
	Summary   ReportSummary `json:"summary"`
	CheckedAt time.Time     `json:"checked_at"`
}

// ReportSummary provides aggregate statistics.
type ReportSummary struct {
	TotalChecks   int  `json:"total_checks"`
	PassedChecks  int  `json:"passed_checks"`
	FailedChecks  int  `json:"failed_checks"`
	SkippedChecks int  `json:"skipped_checks"`
	IsValid       bool `json:"is_valid"`
}

// IsValid returns false if any error-or-worse check failed.
func (r *Report) IsValid() bool {
	for _, check := range r.Checks {
		if check.Status == CheckStatusFailed && check.Severity.AtLeast(SeverityError) {
			return false
		}
	}
	return true
}

// FailedChecks returns only the checks that failed.
func (r *Report) FailedChecks() []Check {
	var failed []Check
	for _, check := range r.Checks {
		if check.Status == CheckStatusFailed {
			failed = append(failed, check)
		}
	}
	return failed
}

// Validator performs one preflight check.
type Validator interface {
	// ID returns the unique identifier for this validator.
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Validate performs the check.
	Validate(ctx context.Context) Check
}

func newCheck(v Validator, severity Severity) Check {
	return Check{
		ID:       v.ID(),
		Name:     v.Name(),
		Severity: severity,
		Evidence: make(map[string]interface{}),
	}
}

func failCheck(check Check, start time.Time, err error, remediation string) Check {
	check.Status = CheckStatusFailed
	check.Evidence["error"] = err.Error()
	check.Remediation = remediation
	check.Duration = time.Since(start)
	return check
}

// TokenAcquisitionValidator attempts to acquire a Graph token.
type TokenAcquisitionValidator struct {
	tokens TokenProvider
	scopes []string
}

// NewTokenAcquisitionValidator creates a new token acquisition validator.
func NewTokenAcquisitionValidator(tp TokenProvider, scopes ...string) *TokenAcquisitionValidator {
	if len(scopes) == 0 {
		scopes = []string{GraphScope}
	}
	return &TokenAcquisitionValidator{tokens: tp, scopes: scopes}
}

func (v *TokenAcquisitionValidator) ID() string   { return "token_acquisition" }
func (v *TokenAcquisitionValidator) Name() string { return "Token Acquisition" }

func (v *TokenAcquisitionValidator) Validate(ctx context.Context) Check {
	start := time.Now()
	check := newCheck(v, SeverityCritical)
	check.Evidence["scopes"] = v.scopes

	resp, err := v.tokens.Token(ctx, TokenRequest{Scopes: v.scopes})
	if err != nil {
		return failCheck(check, start, err,
			"Check AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET")
	}

	check.Status = CheckStatusPassed
	check.Evidence["token_type"] = resp.TokenType
	check.Evidence["expires_at"] = resp.ExpiresAt.UTC().Format(time.RFC3339)
	check.Duration = time.Since(start)
	return check
}

// TenantReachableValidator reads the organization behind the credentials.
type TenantReachableValidator struct {
	prober TenantProber
}

// NewTenantReachableValidator creates a new tenant validator.
func NewTenantReachableValidator(p TenantProber) *TenantReachableValidator {
	return &TenantReachableValidator{prober: p}
}

func (v *TenantReachableValidator) ID() string   { return "tenant_reachable" }
func (v *TenantReachableValidator) Name() string { return "Tenant Reachable" }

func (v *TenantReachableValidator) Validate(ctx context.Context) Check {
	start := time.Now()
	check := newCheck(v, SeverityError)

	orgs, err := v.prober.Organizations(ctx)
	if err != nil {
		return failCheck(check, start, err,
			"Grant the application Organization.Read.All and confirm admin consent")
	}
	if len(orgs) == 0 {
		return failCheck(check, start, fmt.Errorf("no organization returned"),
			"Confirm the tenant id points to an existing tenant")
	}

	names := make([]string, 0, len(orgs))
	for _, org := range orgs {
		names = append(names, fmt.Sprintf("%s (%s)", org.DisplayName, org.ID))
	}
	check.Status = CheckStatusPassed
	check.Evidence["organizations"] = names
	check.Duration = time.Since(start)
	return check
}

// JobsAPIReachableValidator reads the first page of snapshot jobs.
type JobsAPIReachableValidator struct {
	api JobAPI
}

// NewJobsAPIReachableValidator creates a new jobs API validator.
func NewJobsAPIReachableValidator(api JobAPI) *JobsAPIReachableValidator {
	return &JobsAPIReachableValidator{api: api}
}

func (v *JobsAPIReachableValidator) ID() string   { return "jobs_api_reachable" }
func (v *JobsAPIReachableValidator) Name() string { return "Snapshot Jobs API Reachable" }

func (v *JobsAPIReachableValidator) Validate(ctx context.Context) Check {
	start := time.Now()
	check := newCheck(v, SeverityError)

	page, err := v.api.ListJobs(ctx, "")
	if err != nil {
		return failCheck(check, start, err,
			"Grant the application ConfigurationMonitoring.ReadWrite.All and confirm admin consent")
	}

	active := 0
	for _, job := range page.Jobs {
		if job.Status.IsActive() {
			active++
		}
	}
	check.Status = CheckStatusPassed
	check.Evidence["jobs_on_first_page"] = len(page.Jobs)
	check.Evidence["active_jobs"] = active
	check.Evidence["has_more"] = page.NextLink != ""
	check.Duration = time.Since(start)
	return check
}

// ResourcesValidator checks resource type identifiers locally.
type ResourcesValidator struct {
	resources []string
}

// NewResourcesValidator creates a new resources validator.
func NewResourcesValidator(resources []string) *ResourcesValidator {
	return &ResourcesValidator{resources: resources}
}

func (v *ResourcesValidator) ID() string   { return "resources_valid" }
func (v *ResourcesValidator) Name() string { return "Resource Types Valid" }

func (v *ResourcesValidator) Validate(ctx context.Context) Check {
	start := time.Now()
	check := newCheck(v, SeverityWarning)
	check.Evidence["count"] = len(v.resources)

	if len(v.resources) == 0 {
		check.Status = CheckStatusSkipped
		check.Remediation = "No resource catalog configured"
		check.Duration = time.Since(start)
		return check
	}

	var invalid []string
	for _, r := range v.resources {
		if ValidateResourceID(r) != nil {
			invalid = append(invalid, r)
		}
	}
	if len(invalid) > 0 {
		check.Status = CheckStatusFailed
		check.Evidence["invalid"] = invalid
		check.Remediation = "Resource types must look like vendor.workload.resource"
		check.Duration = time.Since(start)
		return check
	}

	check.Status = CheckStatusPassed
	check.Duration = time.Since(start)
	return check
}

// RunChecks executes validators in order and returns a report.
func RunChecks(ctx context.Context, validators []Validator) *Report {
	report := &Report{
		Checks:    make([]Check, 0, len(validators)),
		CheckedAt: time.Now(),
	}

	for _, v := range validators {
		check := v.Validate(ctx)
		report.Checks = append(report.Checks, check)

		switch check.Status {
		case CheckStatusPassed:
			report.Summary.PassedChecks++
		case CheckStatusFailed:
			report.Summary.FailedChecks++
		case CheckStatusSkipped:
			report.Summary.SkippedChecks++
		}
		report.Summary.TotalChecks++
	}

	report.Summary.IsValid = report.IsValid()
	return report
}
