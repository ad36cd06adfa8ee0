package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/cmingest/internal/catalog/rest"
	"github.com/JonMunkholm/cmingest/internal/core"
	_ "github.com/JonMunkholm/cmingest/internal/core/readers" // Register all formats
	"github.com/JonMunkholm/cmingest/internal/logging"
	"github.com/JonMunkholm/cmingest/internal/metrics"
	"github.com/JonMunkholm/cmingest/internal/store"
)

const (
	pushJob     = "cmingest"
	pushTimeout = 10 * time.Second
)

func newIngestCmd(opts *options, use, format, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, format)
		},
	}
}

func runIngest(cmd *cobra.Command, opts *options, format string) error {
	ctx := cmd.Context()
	cfg := opts.cfg

	def, ok := core.Get(format)
	if !ok {
		return fmt.Errorf("format %q is not registered", format)
	}
	if opts.path == "" {
		return &exitError{code: exitCodeUsage, err: errors.New("--path is required")}
	}

	paths, err := core.Discover(opts.path, def.Info.Extension)
	if err != nil {
		if errors.Is(err, core.ErrInvalidPath) {
			return &exitError{code: exitCodeUsage, err: err}
		}
		return err
	}

	log := logging.WithFields(ctx, "format", format, "path", opts.path)
	if len(paths) == 0 {
		log.Warn("no artifacts found", "extension", def.Info.Extension)
		return nil
	}

	catalog, err := newCatalog(ctx, opts)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	p := core.NewPipeline(catalog, core.PipelineConfig{
		BatchSize: cfg.Ingest.BatchSize,
		Reader:    core.ReaderOptions{SaveFiles: cfg.Ingest.SaveFiles},
		Observer:  metrics.NewPipeline(reg),
	})

	outcomes, runErr := p.Run(ctx, format, paths)
	printSummary(cmd.OutOrStdout(), outcomes, opts.dryRun)

	if url := cfg.Ingest.PushgatewayURL; url != "" {
		// The run context may already be cancelled.
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		if err := metrics.Push(pushCtx, url, pushJob, reg); err != nil {
			log.Warn("failed to push metrics", "url", url, "error", err)
		}
		cancel()
	}

	if runErr != nil {
		return runErr
	}
	if failed := countFailed(outcomes); failed > 0 {
		return &exitError{code: exitCodeError, err: fmt.Errorf("%d of %d artifacts failed", failed, len(outcomes))}
	}
	return nil
}

// newCatalog returns the REST client, or an in-memory catalog for dry runs.
func newCatalog(ctx context.Context, opts *options) (core.Catalog, error) {
	cfg := opts.cfg.Catalog
	if opts.dryRun {
		return store.NewCatalog(store.NewMemory(), cfg.PageSize), nil
	}
	if cfg.APIKey == "" {
		logging.FromContext(ctx).Warn("no catalog API key set; use --api-key or COGNITE_API_KEY")
	}
	return rest.New(rest.Config{
		BaseURL:    cfg.BaseURL,
		Project:    cfg.Project,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		MaxRetries: retries(cfg.MaxRetries),
		PageSize:   cfg.PageSize,
	})
}

// retries maps the configured retry count onto rest.Config, where 0 selects
// the client default.
func retries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func countFailed(outcomes []core.ArtifactOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status() == core.StatusFailed {
			n++
		}
	}
	return n
}
