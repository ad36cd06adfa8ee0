package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/cmingest/internal/core"
	"github.com/JonMunkholm/cmingest/internal/store"
)

// openTestStore connects to PGSTORE_TEST_DATABASE_URL and empties the
// catalog. Tests skip when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("PGSTORE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PGSTORE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Config{URL: url, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Reset(ctx))
	return s
}

func TestLikePrefix(t *testing.T) {
	tests := map[string]string{
		"Pump_1": `Pump\_1%`,
		"50%":    `50\%%`,
		`a\b`:    `a\\b%`,
		"":       "%",
	}
	for in, want := range tests {
		assert.Equal(t, want, likePrefix(in), in)
	}
}

func TestPageOf(t *testing.T) {
	id := func(v int64) int64 { return v }

	p := pageOf([]int64{1, 2, 3}, 2, id)
	assert.Equal(t, []int64{1, 2}, p.Items)
	assert.Equal(t, "2", p.NextCursor)

	p = pageOf([]int64{1, 2}, 2, id)
	assert.Empty(t, p.NextCursor)
}

func TestStore_AssetsAndTimeSeries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assets, err := s.CreateAssets(ctx, []core.Asset{
		{Name: "Pump 1", ExternalID: "p1", Metadata: map[string]string{core.AssetUIDKey: "uid-1"}},
		{Name: "Pump 10", Metadata: map[string]string{core.AssetUIDKey: "uid-10"}},
	})
	require.NoError(t, err)
	require.Len(t, assets, 2)

	_, err = s.CreateAssets(ctx, []core.Asset{{Name: "dup", ExternalID: "p1"}})
	assert.ErrorIs(t, err, store.ErrConflict)

	p, err := s.ListAssets(ctx, map[string]string{core.AssetUIDKey: "uid-1"}, 0, "")
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "Pump 1", p.Items[0].Name)

	_, err = s.CreateTimeSeries(ctx, []core.TimeSeries{
		{Name: "Pump_1_Speed_(rpm)", AssetID: &assets[0].ID, Metadata: map[string]string{"assetName": "Pump 1"}},
		{Name: "Pump_10_Speed_(rpm)"},
		{Name: "Pump100"},
	})
	require.NoError(t, err)

	ts, err := s.ListTimeSeries(ctx, "Pump_1", 0, "")
	require.NoError(t, err)
	assert.Len(t, ts.Items, 2, "underscore is matched literally")

	_, err = s.CreateTimeSeries(ctx, []core.TimeSeries{{Name: "Pump100"}})
	assert.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.InsertDatapoints(ctx, "Pump_1_Speed_(rpm)", []core.Datapoint{
		{TimestampMillis: 1000, Value: 1}, {TimestampMillis: 2000, Value: 2},
	}))
	require.NoError(t, s.InsertDatapoints(ctx, "Pump_1_Speed_(rpm)", []core.Datapoint{
		{TimestampMillis: 2000, Value: 5},
	}))
	dps, err := s.Datapoints(ctx, "Pump_1_Speed_(rpm)")
	require.NoError(t, err)
	assert.Equal(t, []core.Datapoint{{TimestampMillis: 1000, Value: 1}, {TimestampMillis: 2000, Value: 5}}, dps)

	err = s.InsertDatapoints(ctx, "missing", []core.Datapoint{{TimestampMillis: 1}})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_Sequences(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSequences(ctx, []core.Sequence{{
		Name:        "Pump 1-Vibration",
		Description: "/'Waveforms'/'Vibration'",
		Columns: []core.Column{
			{Name: "time", ValueType: core.CatalogLong},
			{Name: "Vibration", ValueType: core.CatalogDouble},
		},
	}})
	require.NoError(t, err)
	seq := created[0]
	require.Len(t, seq.Columns, 2)
	assert.NotEmpty(t, seq.ExternalID)

	rows := make([]core.Row, 0, 3)
	for i := int64(0); i < 3; i++ {
		rows = append(rows, core.Row{Index: i, Values: []core.RowValue{
			{ColumnID: seq.Columns[0].ID, Value: 1_551_695_400_000 + i},
			{ColumnID: seq.Columns[1].ID, Value: float64(i) / 2},
		}})
	}
	require.NoError(t, s.InsertSequenceRows(ctx, seq.ID, rows))
	require.NoError(t, s.InsertSequenceRows(ctx, seq.ID, rows[:1]))

	n, err := s.CountSequenceRows(ctx, seq.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	err = s.InsertSequenceRows(ctx, seq.ID+1000, rows)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DrivesCatalogAdapter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := core.NewReconciler(store.NewCatalog(s, 2))
	_, created, err := r.EnsureTimeSeries(ctx, core.TimeSeriesRecord{Name: "Fan_Overall_(mm/s)"})
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = core.NewReconciler(store.NewCatalog(s, 2)).
		EnsureTimeSeries(ctx, core.TimeSeriesRecord{Name: "Fan_Overall_(mm/s)"})
	require.NoError(t, err)
	assert.False(t, created)
}
