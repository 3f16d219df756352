// Package main is the entry point for the utcm-export CLI.
//
// The CLI drives Microsoft Graph configuration snapshot jobs and turns the
// exported tenant configuration into a tree of YAML files.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	exitError           = 1
	exitValidationError = 2
)

const version = "0.3.0"

// errChecksFailed is returned by check when the report is invalid.
var errChecksFailed = errors.New("preflight checks failed")

func main() {
	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	a := newApp(os.Stdout, os.Stderr)
	err := newRootCmd(a).ExecuteContext(ctx)
	_ = a.logger.Sync()
	if err != nil {
		if errors.Is(err, errChecksFailed) {
			os.Exit(exitValidationError)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "utcm-export",
		Short: "Export Microsoft 365 tenant configuration as YAML",
		Long: `utcm-export drives Microsoft Graph configuration snapshot jobs and
writes the exported tenant configuration as one YAML file per instance.

Credentials are read from AZURE_TENANT_ID, AZURE_CLIENT_ID and
AZURE_CLIENT_SECRET, optionally through a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		newRunCmd(a),
		newParseCmd(a),
		newExportCmd(a),
		newListCmd(a),
		newCleanupCmd(a),
		newCheckCmd(a),
		newVersionCmd(a),
	)
	return root
}
