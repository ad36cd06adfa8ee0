package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/cmingest/internal/config"
	"github.com/JonMunkholm/cmingest/internal/logging"
)

// ExitCode is the process exit status of an ingest run.
type ExitCode int

const (
	exitCodeSuccess ExitCode = 0
	exitCodeError   ExitCode = 1

	// exitCodeUsage covers bad flags and paths that cannot be ingested.
	exitCodeUsage ExitCode = 2
)

// exitError carries a specific exit code out of a command.
type exitError struct {
	code ExitCode
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// options holds the persistent flags shared by every ingest command.
type options struct {
	path      string
	apiKey    string
	saveFiles bool
	batchSize int
	dryRun    bool
	verbose   bool

	cfg *config.Config
}

// Run executes the command line and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) ExitCode {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitCodeSuccess
	}
	fmt.Fprintf(stderr, "error: %v\n", err)

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCodeError
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Upload InsightCM recordings and trend bundles to the catalog",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd, logOut)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &exitError{code: exitCodeUsage, err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.path, "path", "p", "", "artifact file or directory of artifacts")
	flags.StringVarP(&opts.apiKey, "api-key", "k", "", "catalog API key (default $COGNITE_API_KEY)")
	flags.BoolVarP(&opts.saveFiles, "save-files", "s", false, "keep extracted bundle contents next to the archive")
	flags.IntVar(&opts.batchSize, "batch-size", 0, "datapoints per insert request (default $INGEST_BATCH_SIZE)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "process against an in-memory catalog and write nothing")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "set debug logging level")

	root.AddCommand(
		newIngestCmd(opts, "waveforms", "tdms", "Ingest TDMS waveform recordings"),
		newIngestCmd(opts, "trends", "trend", "Ingest InsightCM trend bundles"),
		newFormatsCmd(),
	)
	return root
}

// load reads .env and the environment, applies flag overrides and installs
// the logger.
func (o *options) load(cmd *cobra.Command, logOut io.Writer) error {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if o.apiKey != "" {
		cfg.Catalog.APIKey = o.apiKey
	}
	if cmd.Flags().Changed("batch-size") {
		if o.batchSize <= 0 {
			return &exitError{code: exitCodeUsage, err: fmt.Errorf("--batch-size must be positive, got %d", o.batchSize)}
		}
		cfg.Ingest.BatchSize = o.batchSize
	}
	if o.saveFiles {
		cfg.Ingest.SaveFiles = true
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}

	slog.SetDefault(slog.New(logging.NewHandler(logOut, cfg.Logging.Level, cfg.Logging.Format)))
	slog.Debug("configuration loaded", "config", cfg.String())

	o.cfg = cfg
	return nil
}
