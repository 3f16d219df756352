// Package config loads exporter settings from an optional YAML file, a
// .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/anirudhbiyani/utcm-export/pkg/catalog"
	"github.com/anirudhbiyani/utcm-export/pkg/normalize"
	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

// Environment variables holding the app registration credentials.
const (
	EnvTenantID     = "AZURE_TENANT_ID"
	EnvClientID     = "AZURE_CLIENT_ID"
	EnvClientSecret = "AZURE_CLIENT_SECRET"
)

// Config is the exporter configuration.
type Config struct {
	Azure   AzureConfig   `koanf:"azure"`
	Graph   GraphConfig   `koanf:"graph"`
	Job     JobConfig     `koanf:"job"`
	Output  OutputConfig  `koanf:"output"`
	Cleanup CleanupConfig `koanf:"cleanup"`
	Ledger  LedgerConfig  `koanf:"ledger"`
}

// AzureConfig holds the client-credential app registration.
type AzureConfig struct {
	TenantID     string `koanf:"tenant_id"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// GraphConfig configures the Graph transport.
type GraphConfig struct {
	BaseURL    string        `koanf:"base_url" validate:"required,url"`
	Timeout    time.Duration `koanf:"timeout" validate:"min=1s"`
	RetryCount int           `koanf:"retry_count" validate:"gte=0,lte=10"`
	PageSize   int           `koanf:"page_size" validate:"gte=1,lte=999"`
	Scopes     []string      `koanf:"scopes" validate:"min=1,dive,required"`
}

// JobConfig configures snapshot job creation and polling.
type JobConfig struct {
	DisplayName   string        `koanf:"display_name"`
	Description   string        `koanf:"description"`
	ResourcesFile string        `koanf:"resources_file" validate:"required"`
	PollInterval  time.Duration `koanf:"poll_interval" validate:"min=1s"`
	Timeout       time.Duration `koanf:"timeout" validate:"min=1s"`
}

// OutputConfig configures the YAML tree.
type OutputConfig struct {
	Dir   string `koanf:"dir" validate:"required"`
	Prune bool   `koanf:"prune"`
	Debug bool   `koanf:"debug"`
}

// CleanupConfig configures job cleanup defaults.
type CleanupConfig struct {
	OlderThanDays int      `koanf:"older_than_days" validate:"gte=0"`
	Statuses      []string `koanf:"statuses" validate:"dive,required"`
	MaxJobs       int      `koanf:"max_jobs" validate:"gte=1"`
}

// LedgerConfig configures the local job ledger.
type LedgerConfig struct {
	// Path is the ledger file. Empty disables the ledger.
	Path string `koanf:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	statuses := make([]string, 0, len(snapshot.DefaultCleanupStatuses))
	for _, s := range snapshot.DefaultCleanupStatuses {
		statuses = append(statuses, string(s))
	}

	return Config{
		Graph: GraphConfig{
			BaseURL:    snapshot.DefaultBaseURL,
			Timeout:    snapshot.DefaultRequestTimeout,
			RetryCount: snapshot.DefaultRetryCount,
			PageSize:   snapshot.DefaultPageSize,
			Scopes:     []string{snapshot.GraphScope},
		},
		Job: JobConfig{
			DisplayName:   "GitBackup",
			Description:   "Automated Backup",
			ResourcesFile: catalog.DefaultPath,
			PollInterval:  snapshot.DefaultPollInterval,
			Timeout:       snapshot.DefaultPollTimeout,
		},
		Output: OutputConfig{
			Dir:   normalize.DefaultOutputDir,
			Prune: true,
		},
		Cleanup: CleanupConfig{
			OlderThanDays: snapshot.DefaultOlderThanDays,
			Statuses:      statuses,
			MaxJobs:       snapshot.DefaultMaxJobs,
		},
		Ledger: LedgerConfig{
			Path: snapshot.DefaultLedgerPath(),
		},
	}
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// Path is an optional YAML file. A missing file is an error.
	Path string

	// EnvFile is a dotenv file. A missing file is ignored.
	EnvFile string

	// LookupEnv reads the environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds the configuration: defaults, then the YAML file, then the
// environment. Values from EnvFile never replace variables that are
// already set.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, snapshot.ErrConfig("failed to load env file").
				WithOperation("load_config").
				WithCause(err).
				WithDetail("path", opts.EnvFile)
		}
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := Default()
	if opts.Path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, snapshot.ErrConfig("failed to load config").
				WithOperation("load_config").
				WithCause(err).
				WithDetail("path", opts.Path)
		}
		// Lists are decoded over the default in place.
		if k.Exists("graph.scopes") {
			cfg.Graph.Scopes = nil
		}
		if k.Exists("cleanup.statuses") {
			cfg.Cleanup.Statuses = nil
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return nil, snapshot.ErrConfig("failed to unmarshal config").
				WithOperation("load_config").
				WithCause(err).
				WithDetail("path", opts.Path)
		}
	}

	applyEnv(&cfg, lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	for name, dst := range map[string]*string{
		EnvTenantID:     &cfg.Azure.TenantID,
		EnvClientID:     &cfg.Azure.ClientID,
		EnvClientSecret: &cfg.Azure.ClientSecret,
	} {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
}

// Validate checks value bounds. Credentials are checked separately by
// ValidateCredentials since offline commands do not need them.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
		if name == "" {
			return fld.Name
		}
		return name
	})

	err := validate.Struct(c)
	if err == nil {
		if _, err := c.CleanupStatuses(); err != nil {
			return snapshot.ErrConfig("config validation failed").WithOperation("validate_config").WithCause(err)
		}
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return snapshot.ErrConfig("config validation failed").WithOperation("validate_config").WithCause(err)
	}

	msgs := make([]string, 0, len(vErrs))
	for _, e := range vErrs {
		path := strings.TrimPrefix(e.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("key=%q, value=%q, failed %q validation", path, fmt.Sprint(e.Value()), e.ActualTag()))
	}
	return snapshot.ErrConfig("config validation failed: " + strings.Join(msgs, "; ")).
		WithOperation("validate_config")
}

// ValidateCredentials reports the first missing credential by its
// environment variable name.
func (c *Config) ValidateCredentials() error {
	required := []struct {
		env   string
		value string
	}{
		{EnvTenantID, c.Azure.TenantID},
		{EnvClientID, c.Azure.ClientID},
		{EnvClientSecret, c.Azure.ClientSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return snapshot.ErrConfig("Missing required environment variable: " + r.env).
				WithOperation("validate_config").
				WithDetail("env", r.env)
		}
	}
	return nil
}

// CleanupStatuses parses the configured cleanup statuses.
func (c *Config) CleanupStatuses() ([]snapshot.JobStatus, error) {
	return snapshot.ParseStatuses(strings.Join(c.Cleanup.Statuses, ","))
}
