package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{LookupEnv: envMap(nil)})
	require.NoError(t, err)

	assert.Equal(t, snapshot.DefaultBaseURL, cfg.Graph.BaseURL)
	assert.Equal(t, []string{snapshot.GraphScope}, cfg.Graph.Scopes)
	assert.Equal(t, 10*time.Second, cfg.Job.PollInterval)
	assert.Equal(t, 2*time.Hour, cfg.Job.Timeout)
	assert.Equal(t, "resources.json", cfg.Job.ResourcesFile)
	assert.Equal(t, "tenant_state", cfg.Output.Dir)
	assert.True(t, cfg.Output.Prune)
	assert.Equal(t, 7, cfg.Cleanup.OlderThanDays)
	assert.Equal(t, 500, cfg.Cleanup.MaxJobs)
	assert.Equal(t, []string{"succeeded", "failed", "cancelled"}, cfg.Cleanup.Statuses)
	assert.Empty(t, cfg.Azure.TenantID)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
azure:
  tenant_id: file-tenant
  client_id: file-client
graph:
  retry_count: 5
  timeout: 30s
  scopes: [https://graph.microsoft.us/.default]
job:
  display_name: Nightly
  poll_interval: 5s
output:
  dir: out
  prune: false
cleanup:
  statuses: [failed]
  max_jobs: 20
`)

	cfg, err := Load(LoadOptions{
		Path:      path,
		LookupEnv: envMap(map[string]string{EnvClientID: "env-client", EnvClientSecret: "env-secret", EnvTenantID: ""}),
	})
	require.NoError(t, err)

	assert.Equal(t, "file-tenant", cfg.Azure.TenantID)
	assert.Equal(t, "env-client", cfg.Azure.ClientID)
	assert.Equal(t, "env-secret", cfg.Azure.ClientSecret)
	assert.Equal(t, 5, cfg.Graph.RetryCount)
	assert.Equal(t, 30*time.Second, cfg.Graph.Timeout)
	assert.Equal(t, 50, cfg.Graph.PageSize)
	assert.Equal(t, []string{"https://graph.microsoft.us/.default"}, cfg.Graph.Scopes)
	assert.Equal(t, "Nightly", cfg.Job.DisplayName)
	assert.Equal(t, 5*time.Second, cfg.Job.PollInterval)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.False(t, cfg.Output.Prune)
	assert.Equal(t, []string{"failed"}, cfg.Cleanup.Statuses)
	assert.Equal(t, 20, cfg.Cleanup.MaxJobs)
	assert.NoError(t, cfg.ValidateCredentials())

	statuses, err := cfg.CleanupStatuses()
	require.NoError(t, err)
	assert.Equal(t, []snapshot.JobStatus{snapshot.StatusFailed}, statuses)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "missing.yaml"), LookupEnv: envMap(nil)})
	require.Error(t, err)
	assert.True(t, snapshot.IsCategory(err, snapshot.ErrCategoryConfig))
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		msg     string
	}{
		{"page size", "graph:\n  page_size: 0\n", `key="graph.page_size"`},
		{"retry count", "graph:\n  retry_count: 11\n", `key="graph.retry_count"`},
		{"empty scopes", "graph:\n  scopes: []\n", `key="graph.scopes"`},
		{"base url", "graph:\n  base_url: not a url\n", `key="graph.base_url"`},
		{"poll interval", "job:\n  poll_interval: 10ms\n", `key="job.poll_interval"`},
		{"negative age", "cleanup:\n  older_than_days: -1\n", `key="cleanup.older_than_days"`},
		{"unknown status", "cleanup:\n  statuses: [running, bogus]\n", `unknown job status "bogus"`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(LoadOptions{Path: writeConfig(t, c.content), LookupEnv: envMap(nil)})
			require.Error(t, err)
			assert.True(t, snapshot.IsCategory(err, snapshot.ErrCategoryConfig))
			assert.Contains(t, err.Error(), c.msg)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AZURE_TENANT_ID=dotenv-tenant\nAZURE_CLIENT_ID=dotenv-client\n"), 0o600))

	t.Setenv(EnvTenantID, "")
	require.NoError(t, os.Unsetenv(EnvTenantID))
	t.Setenv(EnvClientID, "existing-client")

	cfg, err := Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "dotenv-tenant", cfg.Azure.TenantID)
	assert.Equal(t, "existing-client", cfg.Azure.ClientID)

	_, err = Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	assert.NoError(t, err)
}

func TestValidateCredentials(t *testing.T) {
	cfg := Default()
	cfg.Azure = AzureConfig{TenantID: "t", ClientSecret: "s"}

	err := cfg.ValidateCredentials()
	require.Error(t, err)
	assert.True(t, snapshot.IsCategory(err, snapshot.ErrCategoryConfig))
	assert.Contains(t, err.Error(), "Missing required environment variable: AZURE_CLIENT_ID")

	cfg.Azure.ClientID = "c"
	assert.NoError(t, cfg.ValidateCredentials())
}
