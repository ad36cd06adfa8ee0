package core

// pipeline.go drives artifacts through read, map, reconcile and submit.
//
// Each artifact moves through:
//
//	Discovered -> Parsed -> per channel {Mapped -> Reconciled -> Submitted | Rejected} -> Completed
//	Discovered -> Failed  (artifact could not be read)
//
// Channel failures never stop sibling channels, and artifact failures never
// stop the run. Nothing is rolled back: a sequence created for a channel
// whose rows then fail to post stays in the catalog, and a later run creates
// a new sequence for the same channel.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/cmingest/internal/logging"
	"github.com/google/uuid"
)

// Observer receives pipeline events, typically to update metrics.
type Observer interface {
	ArtifactProcessed(format string, status Status, elapsed time.Duration)
	ChannelProcessed(format string, kind Kind, state ChannelState)
	DatapointsSubmitted(format string, n int)
	RowsSubmitted(format string, n int)
}

type nopObserver struct{}

func (nopObserver) ArtifactProcessed(string, Status, time.Duration) {}
func (nopObserver) ChannelProcessed(string, Kind, ChannelState)     {}
func (nopObserver) DatapointsSubmitted(string, int)                 {}
func (nopObserver) RowsSubmitted(string, int)                       {}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	BatchSize int          // Datapoints per submission (default: 1000)
	Reader    ReaderOptions
	Observer  Observer     // Optional
}

// Pipeline processes artifacts of registered formats against a catalog.
type Pipeline struct {
	catalog  Catalog
	cfg      PipelineConfig
	observer Observer
}

// NewPipeline returns a Pipeline backed by catalog.
func NewPipeline(catalog Catalog, cfg PipelineConfig) *Pipeline {
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Pipeline{catalog: catalog, cfg: cfg, observer: obs}
}

// run holds the state shared by the artifacts of one Run call.
type run struct {
	format     FormatDefinition
	reader     FormatReader
	reconciler *Reconciler
	submitter  *Submitter
}

// Run processes paths one at a time with the reader of format.
//
// The asset cache lives for the duration of the call. Cancellation is
// honored between artifacts only; the outcomes of the artifacts processed so
// far are returned together with the context error.
func (p *Pipeline) Run(ctx context.Context, format string, paths []string) ([]ArtifactOutcome, error) {
	r, err := p.newRun(format)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithRunID(ctx, uuid.NewString())
	log := logging.FromContext(ctx)

	log.Info("run started", "format", format, "artifacts", len(paths))
	start := time.Now()

	outcomes := make([]ArtifactOutcome, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled", "processed", len(outcomes), "remaining", len(paths)-len(outcomes))
			return outcomes, fmt.Errorf("run cancelled: %w", err)
		}
		outcomes = append(outcomes, p.processArtifact(ctx, r, path))
	}

	log.Info("run completed", "artifacts", len(outcomes), "duration_ms", time.Since(start).Milliseconds())
	return outcomes, nil
}

// ProcessArtifact processes a single artifact in a run of its own.
func (p *Pipeline) ProcessArtifact(ctx context.Context, format, path string) (ArtifactOutcome, error) {
	r, err := p.newRun(format)
	if err != nil {
		return ArtifactOutcome{}, err
	}
	ctx = logging.WithRunID(ctx, uuid.NewString())
	return p.processArtifact(ctx, r, path), nil
}

func (p *Pipeline) newRun(format string) (*run, error) {
	def, ok := Get(format)
	if !ok {
		return nil, fmt.Errorf("unknown format: %s", format)
	}
	return &run{
		format:     def,
		reader:     def.NewReader(p.cfg.Reader),
		reconciler: NewReconciler(p.catalog),
		submitter:  NewSubmitter(p.catalog, p.cfg.BatchSize),
	}, nil
}

// processArtifact reads one artifact and processes each of its channels.
func (p *Pipeline) processArtifact(ctx context.Context, r *run, path string) ArtifactOutcome {
	log := logging.WithFields(ctx, "artifact", path)
	start := time.Now()

	outcome := ArtifactOutcome{Path: path, Format: r.format.Info.Key, State: StateDiscovered}
	defer func() {
		outcome.Duration = time.Since(start)
		p.observer.ArtifactProcessed(outcome.Format, outcome.Status(), outcome.Duration)
	}()

	descriptors, err := r.reader.Read(ctx, path)
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = ParseError(path, err)
		}
		outcome.State = StateFailed
		outcome.Err = f
		log.Error("failed to read artifact", "error", err, "code", f.Code)
		return outcome
	}
	outcome.State = StateParsed
	log.Info("artifact parsed", "channels", len(descriptors))

	for _, d := range descriptors {
		ch := p.processChannel(ctx, r, d)
		p.observer.ChannelProcessed(outcome.Format, ch.Kind, ch.State)
		outcome.Channels = append(outcome.Channels, ch)
	}

	outcome.State = StateCompleted
	log.Info("artifact completed",
		"status", outcome.Status(),
		"channels", len(outcome.Channels),
		"submitted", outcome.Submitted(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcome
}

// processChannel maps, reconciles and submits one descriptor.
func (p *Pipeline) processChannel(ctx context.Context, r *run, d RawChannelDescriptor) ChannelOutcome {
	ctx = logging.WithAttrs(ctx, "channel", d.Label())
	log := logging.FromContext(ctx)
	out := ChannelOutcome{Channel: d.Label(), Kind: d.Kind}

	fail := func(err error) ChannelOutcome {
		var f *Failure
		if errors.As(err, &f) {
			if f.Artifact == "" {
				f.Artifact = d.Artifact
			}
			if f.Channel == "" {
				f.Channel = d.Label()
			}
		}
		out.State = ChannelRejected
		out.Err = err
		if KindOf(err) == MappingRejection {
			log.Warn("channel rejected", "error", err, "code", CodeFor(err))
		} else {
			log.Error("channel failed", "error", err, "code", CodeFor(err))
		}
		return out
	}

	m, err := Map(d)
	if err != nil {
		return fail(err)
	}
	out.State = ChannelMapped

	switch m.Kind {
	case KindWaveform:
		out.Name = m.Sequence.Name
		seq, err := r.reconciler.CreateSequence(ctx, *m.Sequence)
		if err != nil {
			return fail(err)
		}
		out.State = ChannelReconciled

		rows, err := BuildRows(m.Waveform, seq)
		if err != nil {
			return fail(NewFailure(SubmissionFailure, CodeRowsFailed, err))
		}
		if err := r.submitter.PostSequenceRows(ctx, seq.ID, rows); err != nil {
			return fail(err)
		}
		out.Points = len(rows)
		p.observer.RowsSubmitted(r.format.Info.Key, len(rows))
		log.Info("sent rows to sequence", "rows", len(rows), "sequence", seq.Name, "sequence_id", seq.ID)

	default:
		out.Name = m.TimeSeries.Name
		if _, _, err := r.reconciler.EnsureTimeSeries(ctx, *m.TimeSeries); err != nil {
			return fail(err)
		}
		out.State = ChannelReconciled

		if err := r.submitter.PostDatapoints(ctx, m.TimeSeries.Name, m.Points); err != nil {
			return fail(err)
		}
		out.Points = len(m.Points)
		p.observer.DatapointsSubmitted(r.format.Info.Key, len(m.Points))
		log.Info("sent datapoints", "datapoints", len(m.Points), "name", m.TimeSeries.Name)
	}

	out.State = ChannelSubmitted
	return out
}
