// Package pgstore implements store.Store on PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/cmingest/internal/core"
	"github.com/JonMunkholm/cmingest/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// PostgreSQL error codes mapped to store errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Config holds connection pool settings.
type Config struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is a PostgreSQL-backed catalog store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to the database, verifies the connection and applies the
// schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	slog.Debug("catalog schema applied")
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ListAssets returns assets whose metadata contains every filter pair.
func (s *Store) ListAssets(ctx context.Context, metadata map[string]string, limit int, cursor string) (store.Page[core.Asset], error) {
	after, err := store.ParseCursor(cursor)
	if err != nil {
		return store.Page[core.Asset]{}, err
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	filter, err := json.Marshal(metadata)
	if err != nil {
		return store.Page[core.Asset]{}, fmt.Errorf("encode metadata filter: %w", err)
	}
	limit = store.NormalizeLimit(limit)

	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(external_id, ''), name, parent_id, metadata
		FROM assets
		WHERE id > $1 AND metadata @> $2::jsonb
		ORDER BY id
		LIMIT $3`, after, filter, limit+1)
	if err != nil {
		return store.Page[core.Asset]{}, fmt.Errorf("list assets: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Asset, error) {
		var a core.Asset
		err := row.Scan(&a.ID, &a.ExternalID, &a.Name, &a.ParentID, &a.Metadata)
		return a, err
	})
	if err != nil {
		return store.Page[core.Asset]{}, fmt.Errorf("scan assets: %w", err)
	}
	return pageOf(items, limit, func(a core.Asset) int64 { return a.ID }), nil
}

// CreateAssets creates assets in one transaction.
func (s *Store) CreateAssets(ctx context.Context, assets []core.Asset) ([]core.Asset, error) {
	for _, a := range assets {
		if err := store.ValidateAsset(a); err != nil {
			return nil, err
		}
	}

	out := make([]core.Asset, 0, len(assets))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, a := range assets {
			meta, err := encodeMetadata(a.Metadata)
			if err != nil {
				return err
			}
			err = tx.QueryRow(ctx, `
				INSERT INTO assets (external_id, name, parent_id, metadata)
				VALUES (NULLIF($1, ''), $2, $3, $4::jsonb)
				RETURNING id`, a.ExternalID, a.Name, a.ParentID, meta).Scan(&a.ID)
			if err != nil {
				return mapError(fmt.Sprintf("asset %q", a.Name), err)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListTimeSeries returns time series whose name starts with namePrefix.
func (s *Store) ListTimeSeries(ctx context.Context, namePrefix string, limit int, cursor string) (store.Page[core.TimeSeries], error) {
	after, err := store.ParseCursor(cursor)
	if err != nil {
		return store.Page[core.TimeSeries]{}, err
	}
	limit = store.NormalizeLimit(limit)

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, unit, description, asset_id, is_string, metadata
		FROM timeseries
		WHERE id > $1 AND name LIKE $2 ESCAPE '\'
		ORDER BY id
		LIMIT $3`, after, likePrefix(namePrefix), limit+1)
	if err != nil {
		return store.Page[core.TimeSeries]{}, fmt.Errorf("list time series: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.TimeSeries, error) {
		var ts core.TimeSeries
		err := row.Scan(&ts.ID, &ts.Name, &ts.Unit, &ts.Description, &ts.AssetID, &ts.IsString, &ts.Metadata)
		return ts, err
	})
	if err != nil {
		return store.Page[core.TimeSeries]{}, fmt.Errorf("scan time series: %w", err)
	}
	return pageOf(items, limit, func(ts core.TimeSeries) int64 { return ts.ID }), nil
}

// CreateTimeSeries creates time series in one transaction.
func (s *Store) CreateTimeSeries(ctx context.Context, items []core.TimeSeries) ([]core.TimeSeries, error) {
	for _, ts := range items {
		if err := store.ValidateTimeSeries(ts); err != nil {
			return nil, err
		}
	}

	out := make([]core.TimeSeries, 0, len(items))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, ts := range items {
			meta, err := encodeMetadata(ts.Metadata)
			if err != nil {
				return err
			}
			err = tx.QueryRow(ctx, `
				INSERT INTO timeseries (name, unit, description, asset_id, is_string, metadata)
				VALUES ($1, $2, $3, $4, $5, $6::jsonb)
				RETURNING id`, ts.Name, ts.Unit, ts.Description, ts.AssetID, ts.IsString, meta).Scan(&ts.ID)
			if err != nil {
				return mapError(fmt.Sprintf("time series %q", ts.Name), err)
			}
			out = append(out, ts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertDatapoints upserts points into the named series.
func (s *Store) InsertDatapoints(ctx context.Context, name string, points []core.Datapoint) error {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM timeseries WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: time series %q", store.ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("look up time series %q: %w", name, err)
	}
	if len(points) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range points {
			batch.Queue(`
				INSERT INTO datapoints (timeseries_id, ts_ms, value)
				VALUES ($1, $2, $3)
				ON CONFLICT (timeseries_id, ts_ms) DO UPDATE SET value = EXCLUDED.value`,
				id, p.TimestampMillis, p.Value)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert datapoints into %q: %w", name, err)
		}
		return nil
	})
}

// CreateSequences creates sequences and their columns in one transaction.
func (s *Store) CreateSequences(ctx context.Context, items []core.Sequence) ([]core.Sequence, error) {
	for _, seq := range items {
		if err := store.ValidateSequence(seq); err != nil {
			return nil, err
		}
	}

	out := make([]core.Sequence, 0, len(items))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, seq := range items {
			if seq.ExternalID == "" {
				seq.ExternalID = uuid.NewString()
			}
			meta, err := encodeMetadata(seq.Metadata)
			if err != nil {
				return err
			}
			err = tx.QueryRow(ctx, `
				INSERT INTO sequences (external_id, name, description, asset_id, metadata)
				VALUES ($1, $2, $3, $4, $5::jsonb)
				RETURNING id`, seq.ExternalID, seq.Name, seq.Description, seq.AssetID, meta).Scan(&seq.ID)
			if err != nil {
				return mapError(fmt.Sprintf("sequence %q", seq.Name), err)
			}

			cols := make([]core.Column, len(seq.Columns))
			for i, c := range seq.Columns {
				if c.ExternalID == "" {
					c.ExternalID = c.Name
				}
				err := tx.QueryRow(ctx, `
					INSERT INTO sequence_columns (sequence_id, position, external_id, name, value_type)
					VALUES ($1, $2, $3, $4, $5)
					RETURNING id`, seq.ID, i, c.ExternalID, c.Name, c.ValueType).Scan(&c.ID)
				if err != nil {
					return mapError(fmt.Sprintf("column %q", c.Name), err)
				}
				cols[i] = c
			}
			seq.Columns = cols
			out = append(out, seq)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertSequenceRows writes rows with COPY, replacing rows with the same
// row numbers.
func (s *Store) InsertSequenceRows(ctx context.Context, sequenceID int64, rows []core.Row) error {
	seq, err := s.sequenceColumns(ctx, sequenceID)
	if err != nil {
		return err
	}
	if err := store.ValidateRows(seq, rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	rowNumbers := make([]int64, len(rows))
	var cells [][]any
	for i, r := range rows {
		rowNumbers[i] = r.Index
		for _, v := range r.Values {
			raw, err := json.Marshal(v.Value)
			if err != nil {
				return fmt.Errorf("%w: row %d column %d: %v", store.ErrInvalid, r.Index, v.ColumnID, err)
			}
			cells = append(cells, []any{sequenceID, r.Index, v.ColumnID, raw})
		}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM sequence_rows WHERE sequence_id = $1 AND row_number = ANY($2)`,
			sequenceID, rowNumbers); err != nil {
			return fmt.Errorf("clear sequence rows: %w", err)
		}
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"sequence_rows"},
			[]string{"sequence_id", "row_number", "column_id", "value"},
			pgx.CopyFromRows(cells),
		)
		if err != nil {
			return fmt.Errorf("copy sequence rows: %w", err)
		}
		slog.Debug("sequence rows copied", "sequence_id", sequenceID, "rows", len(rows), "cells", n)
		return nil
	})
}

// Datapoints returns the stored points of a series ordered by timestamp.
func (s *Store) Datapoints(ctx context.Context, name string) ([]core.Datapoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.ts_ms, d.value
		FROM datapoints d JOIN timeseries t ON t.id = d.timeseries_id
		WHERE t.name = $1
		ORDER BY d.ts_ms`, name)
	if err != nil {
		return nil, fmt.Errorf("query datapoints: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Datapoint, error) {
		var p core.Datapoint
		err := row.Scan(&p.TimestampMillis, &p.Value)
		return p, err
	})
}

// CountSequenceRows returns the number of distinct rows stored for a sequence.
func (s *Store) CountSequenceRows(ctx context.Context, sequenceID int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT row_number) FROM sequence_rows WHERE sequence_id = $1`, sequenceID).Scan(&n)
	return n, err
}

func (s *Store) sequenceColumns(ctx context.Context, sequenceID int64) (core.Sequence, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, external_id, name, value_type
		FROM sequence_columns
		WHERE sequence_id = $1
		ORDER BY position`, sequenceID)
	if err != nil {
		return core.Sequence{}, fmt.Errorf("query sequence columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Column, error) {
		var c core.Column
		err := row.Scan(&c.ID, &c.ExternalID, &c.Name, &c.ValueType)
		return c, err
	})
	if err != nil {
		return core.Sequence{}, fmt.Errorf("scan sequence columns: %w", err)
	}
	if len(cols) == 0 {
		return core.Sequence{}, fmt.Errorf("%w: sequence %d", store.ErrNotFound, sequenceID)
	}
	return core.Sequence{ID: sequenceID, Columns: cols}, nil
}

// pageOf trims a result fetched with limit+1 rows and sets the cursor when
// more rows remain.
func pageOf[T any](items []T, limit int, id func(T) int64) store.Page[T] {
	if len(items) <= limit {
		return store.Page[T]{Items: items}
	}
	items = items[:limit]
	return store.Page[T]{Items: items, NextCursor: store.FormatCursor(id(items[limit-1]))}
}

// likePrefix builds a LIKE pattern matching names that start with prefix.
func likePrefix(prefix string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix) + "%"
}

func encodeMetadata(meta map[string]string) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

// mapError translates constraint violations into store errors.
func mapError(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrConflict, what)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s references a missing row", store.ErrNotFound, what)
		}
	}
	return fmt.Errorf("insert %s: %w", what, err)
}
