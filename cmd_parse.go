package main

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/utcm-export/pkg/normalize"
	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

type parseOpts struct {
	outputDir string
	clean     bool
	noClean   bool
	debug     bool
	debugFile string
}

func (o *parseOpts) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.outputDir, "output-dir", normalize.DefaultOutputDir, "output folder for parsed tenant state")
	f.BoolVar(&o.clean, "clean", true, "delete stale YAML files not produced by this run")
	f.BoolVar(&o.noClean, "no-clean", false, "keep stale YAML files")
	f.BoolVar(&o.debug, "debug", false, "dump the raw snapshot JSON before parsing")
	f.StringVar(&o.debugFile, "debug-file", "", "path for the raw snapshot dump (default: <output-dir>/_debug/snapshot_<timestamp>.json)")
	cmd.MarkFlagsMutuallyExclusive("clean", "no-clean")
}

func newParseCmd(a *app) *cobra.Command {
	opts := &parseOpts{}
	var input string
	cmd := &cobra.Command{
		Use:   "parse [resource-location]",
		Short: "Download a snapshot and write it as YAML files",
		Long: `Downloads the snapshot at the given resource location, or reads a local
JSON file with --input, and writes one YAML file per configuration instance
under the output directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			switch {
			case input != "" && len(args) > 0:
				return snapshot.ErrValidation("pass either a resource location or --input, not both")
			case input != "":
				var err error
				if data, err = afero.ReadFile(a.fs, input); err != nil {
					return snapshot.ErrFilesystem("failed to read snapshot file").WithCause(err).WithDetail("path", input)
				}
			case len(args) == 1:
				var err error
				if data, err = a.fetchSnapshot(cmd.Context(), args[0]); err != nil {
					return err
				}
			default:
				return snapshot.ErrValidation("a resource location or --input is required")
			}

			_, err := a.parseSnapshot(cmd, opts, data)
			return err
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&input, "input", "", "read the snapshot from a local JSON file")
	return cmd
}

func (a *app) fetchSnapshot(ctx context.Context, location string) ([]byte, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	a.logger.Info("downloading snapshot", zap.String("location", location))
	return client.FetchSnapshot(ctx, location)
}

// parseSnapshot writes data under the output directory.
func (a *app) parseSnapshot(cmd *cobra.Command, opts *parseOpts, data []byte) (*normalize.Result, error) {
	outputDir := a.cfg.Output.Dir
	if cmd.Flags().Changed("output-dir") {
		outputDir = opts.outputDir
	}
	prune := a.cfg.Output.Prune
	if cmd.Flags().Changed("clean") {
		prune = opts.clean
	}
	if opts.noClean {
		prune = false
	}

	if opts.debug || a.cfg.Output.Debug {
		path := opts.debugFile
		if path == "" {
			path = normalize.DebugDumpPath(outputDir, a.clock.Now())
		}
		if err := normalize.WriteDebugDump(a.fs, path, data); err != nil {
			return nil, err
		}
		a.logger.Info("wrote debug snapshot JSON", zap.String("path", path))
	}

	payload, err := normalize.ParsePayload(data)
	if err != nil {
		return nil, err
	}
	n := normalize.New(a.fs,
		normalize.WithLogger(a.logger.Named("normalize")),
		normalize.WithPrune(prune),
	)
	result, err := n.Normalize(payload, outputDir)
	if err != nil {
		return result, err
	}

	a.logger.Info("parser finished", zap.Int("files_written", len(result.Written)))
	fmt.Fprintf(a.stdout, "Files written: %d\n", len(result.Written))
	if len(result.Pruned) > 0 {
		fmt.Fprintf(a.stdout, "Stale files removed: %d\n", len(result.Pruned))
	}
	return result, nil
}
