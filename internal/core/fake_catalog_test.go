package core

import (
	"context"
	"errors"
	"strings"
)

var errCatalogDown = errors.New("catalog unavailable")

// fakeCatalog is an in-memory Catalog that counts calls.
type fakeCatalog struct {
	nextID     int64
	assets     []Asset
	series     []TimeSeries
	sequences  []Sequence
	datapoints map[string][][]Datapoint // batches per series name
	rows       map[int64][][]Row        // row calls per sequence id
	calls      map[string]int

	failOn          map[string]error
	failBatchNumber int // 1-based datapoint batch to fail, 0 for none
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		nextID:     100,
		datapoints: make(map[string][][]Datapoint),
		rows:       make(map[int64][][]Row),
		calls:      make(map[string]int),
		failOn:     make(map[string]error),
	}
}

func (c *fakeCatalog) id() int64 {
	c.nextID++
	return c.nextID
}

func (c *fakeCatalog) addAsset(name, uid string) int64 {
	a := Asset{ID: c.id(), Name: name, Metadata: map[string]string{AssetUIDKey: uid}}
	c.assets = append(c.assets, a)
	return a.ID
}

func (c *fakeCatalog) record(method string) error {
	c.calls[method]++
	return c.failOn[method]
}

func (c *fakeCatalog) totalCalls() int {
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *fakeCatalog) ListAssetsByMetadata(_ context.Context, metadata map[string]string) ([]Asset, error) {
	if err := c.record("ListAssetsByMetadata"); err != nil {
		return nil, err
	}
	// Mimic a loose server-side filter: candidates need only share a prefix.
	var out []Asset
	for _, a := range c.assets {
		match := true
		for k, v := range metadata {
			if !strings.HasPrefix(a.Metadata[k], v) {
				match = false
			}
		}
		if match {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *fakeCatalog) ListTimeSeriesByPrefix(_ context.Context, prefix string) ([]TimeSeries, error) {
	if err := c.record("ListTimeSeriesByPrefix"); err != nil {
		return nil, err
	}
	var out []TimeSeries
	for _, ts := range c.series {
		if strings.HasPrefix(ts.Name, prefix) {
			out = append(out, ts)
		}
	}
	return out, nil
}

func (c *fakeCatalog) CreateTimeSeries(_ context.Context, ts TimeSeries) (TimeSeries, error) {
	if err := c.record("CreateTimeSeries"); err != nil {
		return TimeSeries{}, err
	}
	ts.ID = c.id()
	c.series = append(c.series, ts)
	return ts, nil
}

func (c *fakeCatalog) CreateSequence(_ context.Context, seq Sequence) (Sequence, error) {
	if err := c.record("CreateSequence"); err != nil {
		return Sequence{}, err
	}
	seq.ID = c.id()
	cols := make([]Column, len(seq.Columns))
	for i, col := range seq.Columns {
		col.ID = c.id()
		cols[i] = col
	}
	seq.Columns = cols
	c.sequences = append(c.sequences, seq)
	return seq, nil
}

func (c *fakeCatalog) InsertSequenceRows(_ context.Context, sequenceID int64, rows []Row) error {
	if err := c.record("InsertSequenceRows"); err != nil {
		return err
	}
	c.rows[sequenceID] = append(c.rows[sequenceID], rows)
	return nil
}

func (c *fakeCatalog) InsertDatapoints(_ context.Context, name string, points []Datapoint) error {
	if err := c.record("InsertDatapoints"); err != nil {
		return err
	}
	if c.failBatchNumber > 0 && c.calls["InsertDatapoints"] == c.failBatchNumber {
		return errCatalogDown
	}
	batch := make([]Datapoint, len(points))
	copy(batch, points)
	c.datapoints[name] = append(c.datapoints[name], batch)
	return nil
}
