package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePoints(n int) []Datapoint {
	points := make([]Datapoint, n)
	for i := range points {
		points[i] = Datapoint{TimestampMillis: int64(i), Value: float64(i)}
	}
	return points
}

func TestSubmitter_PostDatapointsBatches(t *testing.T) {
	tests := []struct {
		name      string
		points    int
		batchSize int
		want      []int
	}{
		{name: "2500 in batches of 1000", points: 2500, batchSize: 0, want: []int{1000, 1000, 500}},
		{name: "exact multiple", points: 2000, batchSize: 1000, want: []int{1000, 1000}},
		{name: "single partial batch", points: 3, batchSize: 1000, want: []int{3}},
		{name: "custom size", points: 5, batchSize: 2, want: []int{2, 2, 1}},
		{name: "no points", points: 0, batchSize: 1000, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := newFakeCatalog()
			s := NewSubmitter(cat, tt.batchSize)

			require.NoError(t, s.PostDatapoints(context.Background(), "ts", makePoints(tt.points)))

			batches := cat.datapoints["ts"]
			require.Len(t, batches, len(tt.want))
			next := int64(0)
			for i, b := range batches {
				assert.Len(t, b, tt.want[i], "batch %d", i)
				for _, p := range b {
					require.Equal(t, next, p.TimestampMillis, "points in order")
					next++
				}
			}
		})
	}
}

func TestSubmitter_StopsAtFirstFailedBatch(t *testing.T) {
	cat := newFakeCatalog()
	cat.failBatchNumber = 2
	s := NewSubmitter(cat, 1000)

	err := s.PostDatapoints(context.Background(), "ts", makePoints(2500))
	require.ErrorIs(t, err, ErrSubmit)
	assert.Equal(t, CodeDatapointsFailed, CodeFor(err))
	assert.Equal(t, 2, cat.calls["InsertDatapoints"])
	assert.Len(t, cat.datapoints["ts"], 1, "committed batches")
}

func TestSubmitter_PostSequenceRows(t *testing.T) {
	cat := newFakeCatalog()
	s := NewSubmitter(cat, 0)
	ctx := context.Background()

	require.NoError(t, s.PostSequenceRows(ctx, 5, nil))
	assert.Zero(t, cat.calls["InsertSequenceRows"], "empty rows do not call the catalog")

	rows := []Row{{Index: 0}, {Index: 1}}
	require.NoError(t, s.PostSequenceRows(ctx, 5, rows))
	require.Len(t, cat.rows[5], 1)
	assert.Len(t, cat.rows[5][0], 2)

	cat.failOn["InsertSequenceRows"] = errCatalogDown
	assert.Equal(t, CodeRowsFailed, CodeFor(s.PostSequenceRows(ctx, 5, rows)))
}

func TestNewSubmitter_DefaultBatchSize(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, NewSubmitter(nil, -1).BatchSize())
}
