package snapshot

import (
	"context"
	"time"
)

// GraphScope is the default OAuth scope for Microsoft Graph app-only access.
const GraphScope = "https://graph.microsoft.com/.default"

// TokenProvider acquires bearer tokens for Microsoft Graph.
type TokenProvider interface {
	// Token acquires a token for the requested scopes.
	Token(ctx context.Context, req TokenRequest) (*TokenResponse, error)
}

// TokenRequest contains parameters for token acquisition.
type TokenRequest struct {
	// Scopes are the requested permission scopes.
	Scopes []string
}

// TokenResponse contains an acquired token and metadata.
type TokenResponse struct {
	// Token is the access token.
	Token string

	// ExpiresAt is when the token expires.
	ExpiresAt time.Time

	// TokenType is the token type (e.g., "Bearer").
	TokenType string

	// Scopes are the granted permission scopes.
	Scopes []string
}

// JobAPI is the remote snapshot job service.
// The orchestrator and cleanup only depend on this interface.
type JobAPI interface {
	// CreateSnapshot starts a new export job.
	// A 409 response is reported as an ErrCategoryConflict error.
	CreateSnapshot(ctx context.Context, req CreateRequest) (*ExportJob, error)

	// GetJob fetches the current state of a job.
	GetJob(ctx context.Context, id string) (*ExportJob, error)

	// ListJobs fetches one page of jobs. An empty nextLink fetches the first page.
	ListJobs(ctx context.Context, nextLink string) (*JobPage, error)

	// DeleteJob deletes a job.
	DeleteJob(ctx context.Context, id string) error
}

// SnapshotFetcher downloads the raw export document of a finished job.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, location string) ([]byte, error)
}

// TenantProber resolves the organization behind the configured credentials.
type TenantProber interface {
	Organizations(ctx context.Context) ([]Organization, error)
}
