// Package azure provides Microsoft Entra token acquisition and tenant
// lookups for the snapshot client.
package azure

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	msgraphbeta "github.com/microsoftgraph/msgraph-beta-sdk-go"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

// Provider implements snapshot.TokenProvider and snapshot.TenantProber
// for an app registration using the client credentials flow.
type Provider struct {
	credential azcore.TokenCredential
	orgClient  OrganizationClient
	logger     *zap.Logger
}

// OrganizationClient abstracts the Graph organization read.
type OrganizationClient interface {
	// ListOrganizations returns the organizations visible to the caller.
	ListOrganizations(ctx context.Context) ([]snapshot.Organization, error)
}

// ProviderOption configures the Provider.
type ProviderOption func(*Provider)

// WithCredential sets the token credential.
func WithCredential(cred azcore.TokenCredential) ProviderOption {
	return func(p *Provider) {
		p.credential = cred
	}
}

// WithOrganizationClient sets the client used by Organizations.
func WithOrganizationClient(client OrganizationClient) ProviderOption {
	return func(p *Provider) {
		p.orgClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = l
	}
}

// New creates a new Azure provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewClientSecretProvider creates a provider backed by a client secret
// credential for the given app registration.
func NewClientSecretProvider(tenantID, clientID, clientSecret string, opts ...ProviderOption) (*Provider, error) {
	for name, value := range map[string]string{
		"tenant_id":     tenantID,
		"client_id":     clientID,
		"client_secret": clientSecret,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, snapshot.ErrConfig(name + " is required").WithOperation("credential")
		}
	}

	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, snapshot.ErrConfig("failed to create client secret credential").
			WithOperation("credential").
			WithCause(err).
			WithDetail("tenant_id", tenantID)
	}
	return New(append([]ProviderOption{WithCredential(cred)}, opts...)...), nil
}

// Token acquires an app-only access token. Scopes default to
// snapshot.GraphScope.
func (p *Provider) Token(ctx context.Context, req snapshot.TokenRequest) (*snapshot.TokenResponse, error) {
	if p.credential == nil {
		return nil, snapshot.ErrConfig("Azure credential not configured").
			WithOperation("token").
			WithDetail("hint", "Configure the credential using WithCredential")
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{snapshot.GraphScope}
	}

	p.logger.Debug("acquiring app-only access token", zap.Strings("scopes", scopes))
	tok, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
	if err != nil {
		return nil, snapshot.ErrAuth("failed to acquire access token").
			WithOperation("token").
			WithCause(err)
	}

	return &snapshot.TokenResponse{
		Token:     tok.Token,
		ExpiresAt: tok.ExpiresOn,
		TokenType: "Bearer",
		Scopes:    scopes,
	}, nil
}

// Organizations returns the tenant organizations through Microsoft Graph.
func (p *Provider) Organizations(ctx context.Context) ([]snapshot.Organization, error) {
	client := p.orgClient
	if client == nil {
		if p.credential == nil {
			return nil, snapshot.ErrConfig("Azure credential not configured").WithOperation("organizations")
		}
		gc, err := newGraphOrganizationClient(p.credential)
		if err != nil {
			return nil, err
		}
		p.orgClient = gc
		client = gc
	}
	return client.ListOrganizations(ctx)
}

// graphOrganizationClient reads /organization with the Graph beta SDK.
type graphOrganizationClient struct {
	client *msgraphbeta.GraphServiceClient
}

func newGraphOrganizationClient(cred azcore.TokenCredential) (*graphOrganizationClient, error) {
	client, err := msgraphbeta.NewGraphServiceClientWithCredentials(cred, []string{snapshot.GraphScope})
	if err != nil {
		return nil, snapshot.ErrConfig("failed to create Graph client").
			WithOperation("organizations").
			WithCause(err)
	}
	return &graphOrganizationClient{client: client}, nil
}

func (c *graphOrganizationClient) ListOrganizations(ctx context.Context) ([]snapshot.Organization, error) {
	resp, err := c.client.Organization().Get(ctx, nil)
	if err != nil {
		return nil, snapshot.ErrTransport(0, "failed to read organization").
			WithOperation("organizations").
			WithCause(err)
	}

	var orgs []snapshot.Organization
	for _, org := range resp.GetValue() {
		orgs = append(orgs, snapshot.Organization{
			ID:          deref(org.GetId()),
			DisplayName: deref(org.GetDisplayName()),
		})
	}
	return orgs, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
