package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/cmingest/internal/core"
)

func TestCatalog_ListsFollowCursors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var items []core.TimeSeries
	for i := 0; i < 7; i++ {
		items = append(items, core.TimeSeries{Name: fmt.Sprintf("Pump_%d_Speed", i)})
	}
	_, err := m.CreateTimeSeries(ctx, items)
	require.NoError(t, err)

	cat := NewCatalog(m, 3)
	got, err := cat.ListTimeSeriesByPrefix(ctx, "Pump_")
	require.NoError(t, err)
	assert.Len(t, got, 7)
}

func TestCatalog_CreateAndInsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cat := NewCatalog(m, 0)

	_, err := m.CreateAssets(ctx, []core.Asset{{Name: "Pump 1", Metadata: map[string]string{core.AssetUIDKey: "uid-1"}}})
	require.NoError(t, err)

	assets, err := cat.ListAssetsByMetadata(ctx, map[string]string{core.AssetUIDKey: "uid-1"})
	require.NoError(t, err)
	require.Len(t, assets, 1)

	ts, err := cat.CreateTimeSeries(ctx, core.TimeSeries{Name: "Pump_1_Speed_(rpm)", AssetID: &assets[0].ID})
	require.NoError(t, err)
	assert.Equal(t, assets[0].ID, *ts.AssetID)

	require.NoError(t, cat.InsertDatapoints(ctx, ts.Name, []core.Datapoint{{TimestampMillis: 1, Value: 3}}))
	assert.Len(t, m.Datapoints(ts.Name), 1)

	_, err = cat.CreateTimeSeries(ctx, core.TimeSeries{Name: ts.Name})
	assert.ErrorIs(t, err, ErrConflict)
}

// The pipeline runs unchanged against the store adapter.
func TestCatalog_DrivesReconciler(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.CreateTimeSeries(ctx, []core.TimeSeries{{Name: "Pump_10_Speed_(rpm)"}})
	require.NoError(t, err)

	r := core.NewReconciler(NewCatalog(m, 0))
	existing, err := r.FindExisting(ctx, "Pump_1_Speed_(rpm)")
	require.NoError(t, err)
	assert.Nil(t, existing)

	ts, created, err := r.EnsureTimeSeries(ctx, core.TimeSeriesRecord{Name: "Pump_1_Speed_(rpm)"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := r.EnsureTimeSeries(ctx, core.TimeSeriesRecord{Name: "Pump_1_Speed_(rpm)"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ts.ID, again.ID)
}
