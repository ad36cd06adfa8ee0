package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/cmingest/internal/core"
)

// Memory is a Store held in process memory. It is safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	nextID     int64
	assets     []core.Asset
	timeSeries []core.TimeSeries
	sequences  []core.Sequence

	// datapoints by series name, keyed by timestamp so rewrites replace.
	datapoints map[string]map[int64]float64
	// rows by sequence id, keyed by row number.
	rows map[int64]map[int64]core.Row
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		datapoints: make(map[string]map[int64]float64),
		rows:       make(map[int64]map[int64]core.Row),
	}
}

func (m *Memory) newID() int64 {
	m.nextID++
	return m.nextID
}

// ListAssets returns assets whose metadata contains every filter pair.
func (m *Memory) ListAssets(_ context.Context, metadata map[string]string, limit int, cursor string) (Page[core.Asset], error) {
	after, err := ParseCursor(cursor)
	if err != nil {
		return Page[core.Asset]{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return page(m.assets, after, NormalizeLimit(limit),
		func(a core.Asset) int64 { return a.ID },
		func(a core.Asset) bool { return MatchesMetadata(a.Metadata, metadata) },
		cloneAsset,
	), nil
}

// CreateAssets creates assets. External ids must be unique.
func (m *Memory) CreateAssets(_ context.Context, assets []core.Asset) ([]core.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range assets {
		if err := ValidateAsset(a); err != nil {
			return nil, err
		}
		if a.ExternalID == "" {
			continue
		}
		if slices.ContainsFunc(m.assets, func(x core.Asset) bool { return x.ExternalID == a.ExternalID }) ||
			slices.ContainsFunc(assets[:i], func(x core.Asset) bool { return x.ExternalID == a.ExternalID }) {
			return nil, fmt.Errorf("%w: asset external id %q", ErrConflict, a.ExternalID)
		}
	}

	out := make([]core.Asset, 0, len(assets))
	for _, a := range assets {
		a = cloneAsset(a)
		a.ID = m.newID()
		m.assets = append(m.assets, a)
		out = append(out, cloneAsset(a))
	}
	return out, nil
}

// ListTimeSeries returns time series whose name starts with namePrefix.
func (m *Memory) ListTimeSeries(_ context.Context, namePrefix string, limit int, cursor string) (Page[core.TimeSeries], error) {
	after, err := ParseCursor(cursor)
	if err != nil {
		return Page[core.TimeSeries]{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return page(m.timeSeries, after, NormalizeLimit(limit),
		func(ts core.TimeSeries) int64 { return ts.ID },
		func(ts core.TimeSeries) bool { return strings.HasPrefix(ts.Name, namePrefix) },
		cloneTimeSeries,
	), nil
}

// CreateTimeSeries creates time series. Names must be unique.
func (m *Memory) CreateTimeSeries(_ context.Context, items []core.TimeSeries) ([]core.TimeSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, ts := range items {
		if err := ValidateTimeSeries(ts); err != nil {
			return nil, err
		}
		if m.seriesIndex(ts.Name) >= 0 ||
			slices.ContainsFunc(items[:i], func(x core.TimeSeries) bool { return x.Name == ts.Name }) {
			return nil, fmt.Errorf("%w: time series %q", ErrConflict, ts.Name)
		}
		if ts.AssetID != nil && m.assetIndex(*ts.AssetID) < 0 {
			return nil, fmt.Errorf("%w: asset %d", ErrNotFound, *ts.AssetID)
		}
	}

	out := make([]core.TimeSeries, 0, len(items))
	for _, ts := range items {
		ts = cloneTimeSeries(ts)
		ts.ID = m.newID()
		m.timeSeries = append(m.timeSeries, ts)
		out = append(out, cloneTimeSeries(ts))
	}
	return out, nil
}

// InsertDatapoints writes points to the named series. A point with an
// existing timestamp replaces the stored value.
func (m *Memory) InsertDatapoints(_ context.Context, name string, points []core.Datapoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seriesIndex(name) < 0 {
		return fmt.Errorf("%w: time series %q", ErrNotFound, name)
	}
	dps := m.datapoints[name]
	if dps == nil {
		dps = make(map[int64]float64, len(points))
		m.datapoints[name] = dps
	}
	for _, p := range points {
		dps[p.TimestampMillis] = p.Value
	}
	return nil
}

// CreateSequences creates sequences and assigns column ids.
func (m *Memory) CreateSequences(_ context.Context, items []core.Sequence) ([]core.Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, seq := range items {
		if err := ValidateSequence(seq); err != nil {
			return nil, err
		}
		if seq.AssetID != nil && m.assetIndex(*seq.AssetID) < 0 {
			return nil, fmt.Errorf("%w: asset %d", ErrNotFound, *seq.AssetID)
		}
	}

	out := make([]core.Sequence, 0, len(items))
	for _, seq := range items {
		seq = cloneSequence(seq)
		seq.ID = m.newID()
		if seq.ExternalID == "" {
			seq.ExternalID = uuid.NewString()
		}
		for i := range seq.Columns {
			seq.Columns[i].ID = m.newID()
			if seq.Columns[i].ExternalID == "" {
				seq.Columns[i].ExternalID = seq.Columns[i].Name
			}
		}
		m.sequences = append(m.sequences, seq)
		out = append(out, cloneSequence(seq))
	}
	return out, nil
}

// InsertSequenceRows writes rows to a sequence, replacing rows with the same
// row number.
func (m *Memory) InsertSequenceRows(_ context.Context, sequenceID int64, rows []core.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.sequences, func(s core.Sequence) bool { return s.ID == sequenceID })
	if i < 0 {
		return fmt.Errorf("%w: sequence %d", ErrNotFound, sequenceID)
	}
	if err := ValidateRows(m.sequences[i], rows); err != nil {
		return err
	}
	stored := m.rows[sequenceID]
	if stored == nil {
		stored = make(map[int64]core.Row, len(rows))
		m.rows[sequenceID] = stored
	}
	for _, r := range rows {
		stored[r.Index] = core.Row{Index: r.Index, Values: slices.Clone(r.Values)}
	}
	return nil
}

// Datapoints returns the stored points of a series ordered by timestamp.
func (m *Memory) Datapoints(name string) []core.Datapoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dps := m.datapoints[name]
	out := make([]core.Datapoint, 0, len(dps))
	for ts, v := range dps {
		out = append(out, core.Datapoint{TimestampMillis: ts, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMillis < out[j].TimestampMillis })
	return out
}

// SequenceRows returns the stored rows of a sequence ordered by row number.
func (m *Memory) SequenceRows(sequenceID int64) []core.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.rows[sequenceID]
	out := make([]core.Row, 0, len(stored))
	for _, idx := range slices.Sorted(maps.Keys(stored)) {
		out = append(out, stored[idx])
	}
	return out
}

// Sequences returns every stored sequence.
func (m *Memory) Sequences() []core.Sequence {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.Sequence, len(m.sequences))
	for i, s := range m.sequences {
		out[i] = cloneSequence(s)
	}
	return out
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() {}

func (m *Memory) seriesIndex(name string) int {
	return slices.IndexFunc(m.timeSeries, func(ts core.TimeSeries) bool { return ts.Name == name })
}

func (m *Memory) assetIndex(id int64) int {
	return slices.IndexFunc(m.assets, func(a core.Asset) bool { return a.ID == id })
}

// page selects up to limit matching items with ids above after. Items are
// stored in id order.
func page[T any](items []T, after int64, limit int, id func(T) int64, match func(T) bool, clone func(T) T) Page[T] {
	var p Page[T]
	for _, it := range items {
		if id(it) <= after || !match(it) {
			continue
		}
		if len(p.Items) == limit {
			p.NextCursor = FormatCursor(id(p.Items[len(p.Items)-1]))
			break
		}
		p.Items = append(p.Items, clone(it))
	}
	return p
}

func cloneAsset(a core.Asset) core.Asset {
	a.Metadata = maps.Clone(a.Metadata)
	if a.ParentID != nil {
		id := *a.ParentID
		a.ParentID = &id
	}
	return a
}

func cloneTimeSeries(ts core.TimeSeries) core.TimeSeries {
	ts.Metadata = maps.Clone(ts.Metadata)
	if ts.AssetID != nil {
		id := *ts.AssetID
		ts.AssetID = &id
	}
	return ts
}

func cloneSequence(s core.Sequence) core.Sequence {
	s.Metadata = maps.Clone(s.Metadata)
	s.Columns = slices.Clone(s.Columns)
	if s.AssetID != nil {
		id := *s.AssetID
		s.AssetID = &id
	}
	return s
}
