package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/cmingest/internal/logging"
)

// DefaultBatchSize is the maximum number of datapoints per submission.
const DefaultBatchSize = 1000

// Submitter pushes data to the catalog.
type Submitter struct {
	catalog   Catalog
	batchSize int
}

// NewSubmitter returns a Submitter posting at most batchSize datapoints per
// request. A non-positive batchSize selects DefaultBatchSize.
func NewSubmitter(catalog Catalog, batchSize int) *Submitter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Submitter{catalog: catalog, batchSize: batchSize}
}

// BatchSize returns the configured batch size.
func (s *Submitter) BatchSize() int { return s.batchSize }

// PostDatapoints submits points to the time series called name in
// contiguous batches, in order. It stops at the first failed batch; batches
// submitted before it stay committed.
func (s *Submitter) PostDatapoints(ctx context.Context, name string, points []Datapoint) error {
	log := logging.FromContext(ctx)
	for start := 0; start < len(points); start += s.batchSize {
		end := min(start+s.batchSize, len(points))
		log.Debug("sending datapoints", "name", name, "from", start, "count", end-start)
		if err := s.catalog.InsertDatapoints(ctx, name, points[start:end]); err != nil {
			return NewFailure(SubmissionFailure, CodeDatapointsFailed,
				fmt.Errorf("post datapoints %d-%d of %d to %q: %w", start, end-1, len(points), name, err))
		}
	}
	return nil
}

// PostSequenceRows submits rows to a sequence in a single call.
// TODO: batch rows once waveforms exceed the catalog's request size limit.
func (s *Submitter) PostSequenceRows(ctx context.Context, sequenceID int64, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.catalog.InsertSequenceRows(ctx, sequenceID, rows); err != nil {
		return NewFailure(SubmissionFailure, CodeRowsFailed,
			fmt.Errorf("post %d rows to sequence %d: %w", len(rows), sequenceID, err))
	}
	return nil
}
