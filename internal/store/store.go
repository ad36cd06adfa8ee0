// Package store persists catalog entities for the catalog server.
//
// A Store holds assets, time series with their datapoints, and sequences
// with their rows. Two implementations exist: an in-memory store used for
// dry runs and tests, and a PostgreSQL store in the pgstore subpackage.
// Catalog adapts any Store to the core.Catalog interface so the ingestion
// pipeline can write to a store directly.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/JonMunkholm/cmingest/internal/core"
)

// Errors returned by Store implementations.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrInvalid  = errors.New("invalid request")
)

// Page limits.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Page is one page of a list result. An empty NextCursor means the listing
// is complete.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Store is a catalog backend. List operations return items ordered by id and
// resume after the id encoded in cursor.
type Store interface {
	ListAssets(ctx context.Context, metadata map[string]string, limit int, cursor string) (Page[core.Asset], error)
	CreateAssets(ctx context.Context, assets []core.Asset) ([]core.Asset, error)
	ListTimeSeries(ctx context.Context, namePrefix string, limit int, cursor string) (Page[core.TimeSeries], error)
	CreateTimeSeries(ctx context.Context, items []core.TimeSeries) ([]core.TimeSeries, error)
	InsertDatapoints(ctx context.Context, name string, points []core.Datapoint) error
	CreateSequences(ctx context.Context, items []core.Sequence) ([]core.Sequence, error)
	InsertSequenceRows(ctx context.Context, sequenceID int64, rows []core.Row) error
	Ping(ctx context.Context) error
	Close()
}

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// ParseCursor decodes a list cursor into the id to resume after.
func ParseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: bad cursor %q", ErrInvalid, cursor)
	}
	return id, nil
}

// FormatCursor encodes the id of the last item of a full page.
func FormatCursor(lastID int64) string {
	return strconv.FormatInt(lastID, 10)
}

// ValidateAsset checks the fields required to create an asset.
func ValidateAsset(a core.Asset) error {
	if a.Name == "" {
		return fmt.Errorf("%w: asset name is required", ErrInvalid)
	}
	return nil
}

// ValidateTimeSeries checks the fields required to create a time series.
func ValidateTimeSeries(ts core.TimeSeries) error {
	if ts.Name == "" {
		return fmt.Errorf("%w: time series name is required", ErrInvalid)
	}
	return nil
}

// ValidateSequence checks the fields required to create a sequence.
func ValidateSequence(seq core.Sequence) error {
	if len(seq.Columns) == 0 {
		return fmt.Errorf("%w: sequence %q has no columns", ErrInvalid, seq.Name)
	}
	seen := make(map[string]bool, len(seq.Columns))
	for _, c := range seq.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: sequence %q has an unnamed column", ErrInvalid, seq.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: sequence %q repeats column %q", ErrInvalid, seq.Name, c.Name)
		}
		seen[c.Name] = true
		switch c.ValueType {
		case core.CatalogDouble, core.CatalogLong, core.CatalogString:
		default:
			return fmt.Errorf("%w: column %q has value type %q", ErrInvalid, c.Name, c.ValueType)
		}
	}
	return nil
}

// ValidateRows checks that every row references a column of seq.
func ValidateRows(seq core.Sequence, rows []core.Row) error {
	cols := make(map[int64]bool, len(seq.Columns))
	for _, c := range seq.Columns {
		cols[c.ID] = true
	}
	for _, r := range rows {
		if r.Index < 0 {
			return fmt.Errorf("%w: negative row number %d", ErrInvalid, r.Index)
		}
		for _, v := range r.Values {
			if !cols[v.ColumnID] {
				return fmt.Errorf("%w: row %d references unknown column %d", ErrInvalid, r.Index, v.ColumnID)
			}
		}
	}
	return nil
}

// MatchesMetadata reports whether every key of filter is present in meta
// with an equal value.
func MatchesMetadata(meta, filter map[string]string) bool {
	for k, v := range filter {
		if got, ok := meta[k]; !ok || got != v {
			return false
		}
	}
	return true
}
