package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/cmingest/internal/core"
)

// Catalog adapts a Store to core.Catalog.
type Catalog struct {
	store    Store
	pageSize int
}

// NewCatalog returns a Catalog reading list results pageSize items at a time.
func NewCatalog(s Store, pageSize int) *Catalog {
	return &Catalog{store: s, pageSize: NormalizeLimit(pageSize)}
}

// ListAssetsByMetadata returns every asset whose metadata contains metadata.
func (c *Catalog) ListAssetsByMetadata(ctx context.Context, metadata map[string]string) ([]core.Asset, error) {
	return collect(func(cursor string) (Page[core.Asset], error) {
		return c.store.ListAssets(ctx, metadata, c.pageSize, cursor)
	})
}

// ListTimeSeriesByPrefix returns every time series whose name starts with prefix.
func (c *Catalog) ListTimeSeriesByPrefix(ctx context.Context, prefix string) ([]core.TimeSeries, error) {
	return collect(func(cursor string) (Page[core.TimeSeries], error) {
		return c.store.ListTimeSeries(ctx, prefix, c.pageSize, cursor)
	})
}

// CreateTimeSeries creates one time series.
func (c *Catalog) CreateTimeSeries(ctx context.Context, ts core.TimeSeries) (core.TimeSeries, error) {
	created, err := c.store.CreateTimeSeries(ctx, []core.TimeSeries{ts})
	if err != nil {
		return core.TimeSeries{}, err
	}
	if len(created) != 1 {
		return core.TimeSeries{}, fmt.Errorf("store returned %d time series for one create", len(created))
	}
	return created[0], nil
}

// CreateSequence creates one sequence.
func (c *Catalog) CreateSequence(ctx context.Context, seq core.Sequence) (core.Sequence, error) {
	created, err := c.store.CreateSequences(ctx, []core.Sequence{seq})
	if err != nil {
		return core.Sequence{}, err
	}
	if len(created) != 1 {
		return core.Sequence{}, fmt.Errorf("store returned %d sequences for one create", len(created))
	}
	return created[0], nil
}

// InsertSequenceRows writes rows to a sequence.
func (c *Catalog) InsertSequenceRows(ctx context.Context, sequenceID int64, rows []core.Row) error {
	return c.store.InsertSequenceRows(ctx, sequenceID, rows)
}

// InsertDatapoints writes datapoints to the time series called name.
func (c *Catalog) InsertDatapoints(ctx context.Context, name string, points []core.Datapoint) error {
	return c.store.InsertDatapoints(ctx, name, points)
}

// collect follows cursors until the listing is complete.
func collect[T any](list func(cursor string) (Page[T], error)) ([]T, error) {
	var (
		out    []T
		cursor string
	)
	for {
		page, err := list(cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}
