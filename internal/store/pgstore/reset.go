package pgstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ResetTimeout bounds a full catalog reset.
const ResetTimeout = 30 * time.Second

// resetOrder lists catalog tables children first.
var resetOrder = []string{
	"sequence_rows",
	"sequence_columns",
	"sequences",
	"datapoints",
	"timeseries",
	"assets",
}

// Reset deletes every catalog entity and restarts id sequences.
// This is destructive and intended for development catalogs.
func (s *Store) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	for _, table := range resetOrder {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	slog.Info("catalog reset", "tables", len(resetOrder))
	return nil
}
