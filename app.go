package main

import (
	"io"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/anirudhbiyani/utcm-export/pkg/config"
	"github.com/anirudhbiyani/utcm-export/pkg/providers/azure"
	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

// jobClient is the remote surface the commands use.
type jobClient interface {
	snapshot.JobAPI
	snapshot.SnapshotFetcher
}

// credentials acquire tokens and identify the tenant.
type credentials interface {
	snapshot.TokenProvider
	snapshot.TenantProber
}

// app holds the state shared by all commands.
type app struct {
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs
	clock  clockwork.Clock

	lookupEnv  func(string) (string, bool)
	configPath string
	envFile    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger

	newCredentials func(cfg *config.Config, logger *zap.Logger) (credentials, error)
	newJobClient   func(cfg *config.Config, tokens snapshot.TokenProvider, logger *zap.Logger) jobClient
	newLedger      func(path string) (snapshot.JobLedger, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:         stdout,
		stderr:         stderr,
		fs:             afero.NewOsFs(),
		clock:          clockwork.NewRealClock(),
		lookupEnv:      os.LookupEnv,
		envFile:        ".env",
		logger:         zap.NewNop(),
		newCredentials: defaultCredentials,
		newJobClient:   defaultJobClient,
		newLedger:      defaultLedger,
	}
}

// setup loads configuration and builds the logger.
func (a *app) setup() error {
	a.logger = newLogger(a.stderr, a.verbose)

	cfg, err := config.Load(config.LoadOptions{
		Path:      a.configPath,
		EnvFile:   a.envFile,
		LookupEnv: a.lookupEnv,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// credentials returns the token provider and tenant prober.
func (a *app) credentials() (credentials, error) {
	if err := a.cfg.ValidateCredentials(); err != nil {
		return nil, err
	}
	return a.newCredentials(a.cfg, a.logger)
}

// client returns an authenticated job client.
func (a *app) client() (jobClient, error) {
	creds, err := a.credentials()
	if err != nil {
		return nil, err
	}
	return a.newJobClient(a.cfg, creds, a.logger), nil
}

// ledger opens the configured job ledger, or an in-memory one when no
// path is set.
func (a *app) ledger() (snapshot.JobLedger, error) {
	if a.cfg.Ledger.Path == "" {
		return snapshot.NewMemoryJobLedger(), nil
	}
	return a.newLedger(a.cfg.Ledger.Path)
}

func defaultCredentials(cfg *config.Config, logger *zap.Logger) (credentials, error) {
	return azure.NewClientSecretProvider(
		cfg.Azure.TenantID,
		cfg.Azure.ClientID,
		cfg.Azure.ClientSecret,
		azure.WithLogger(logger.Named("azure")),
	)
}

func defaultJobClient(cfg *config.Config, tokens snapshot.TokenProvider, logger *zap.Logger) jobClient {
	return snapshot.NewGraphClient(tokens,
		snapshot.WithBaseURL(cfg.Graph.BaseURL),
		snapshot.WithTimeout(cfg.Graph.Timeout),
		snapshot.WithRetry(cfg.Graph.RetryCount, snapshot.DefaultRetryWaitTime, snapshot.DefaultRetryMaxWaitTime),
		snapshot.WithPageSize(cfg.Graph.PageSize),
		snapshot.WithScopes(cfg.Graph.Scopes...),
		snapshot.WithGraphLogger(logger.Named("graph")),
	)
}

func defaultLedger(path string) (snapshot.JobLedger, error) {
	return snapshot.NewFileJobLedger(path)
}

// newLogger builds a console logger on w. Debug output needs verbose.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}
