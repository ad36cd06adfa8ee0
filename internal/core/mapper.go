package core

import (
	"errors"
	"fmt"
	"math"
)

// Sequence column names.
const (
	ColumnTime  = "time"
	ColumnValue = "value"
)

// metadataAssetName is the metadata key carrying the owning asset's name on
// created time series.
const metadataAssetName = "assetName"

// Map converts a raw channel descriptor into its canonical record.
//
// Map is a pure function: it performs no I/O and the same descriptor always
// yields the same record. Rejections are returned as *Failure with kind
// MappingRejection.
func Map(d RawChannelDescriptor) (Mapped, error) {
	var (
		m   Mapped
		err error
	)
	switch d.Kind {
	case KindWaveform:
		m, err = mapWaveform(d)
	case KindStatic:
		m, err = mapStatic(d)
	case KindTrend:
		m, err = mapTrend(d)
	case KindEmpty:
		err = Reject(CodeNoData, ErrNoData, "channel %s", d.Label())
	default:
		err = Reject(CodeUnsupportedKind, ErrInvalidValue, "channel %s has kind %s", d.Label(), d.Kind)
	}
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			f.Artifact = d.Artifact
			f.Channel = d.Label()
		}
		return Mapped{}, err
	}
	return m, nil
}

// signalName returns the display name of the channel or trend.
func signalName(d RawChannelDescriptor) string {
	if s := d.Properties.Text(d.Schema.SignalKey); s != "" {
		return s
	}
	return d.Channel
}

func requireAsset(d RawChannelDescriptor) error {
	if d.Asset.DisplayName == "" {
		return Reject(CodeMissingProperty, ErrMissingProperty, "channel %s has no asset name", d.Label())
	}
	return nil
}

func timeSeriesRecord(d RawChannelDescriptor) *TimeSeriesRecord {
	unit := d.Properties.Text(d.Schema.UnitKey)
	meta := StringifyProperties(d.Properties)
	if d.Asset.DisplayName != "" {
		meta[metadataAssetName] = d.Asset.DisplayName
	}
	return &TimeSeriesRecord{
		Name:        DeriveName(d.Asset.DisplayName, signalName(d), unit),
		Unit:        unit,
		Description: d.Properties.Text(d.Schema.DescriptionKey),
		Asset:       d.Asset,
		Metadata:    meta,
	}
}

func mapStatic(d RawChannelDescriptor) (Mapped, error) {
	if err := requireAsset(d); err != nil {
		return Mapped{}, err
	}

	raw, ok := d.Properties[PropValue]
	if !ok {
		return Mapped{}, Reject(CodeMissingProperty, ErrMissingProperty, "static channel %s has no %s", d.Label(), PropValue)
	}
	value, err := ToFloat(raw)
	if err != nil {
		return Mapped{}, Reject(CodeInvalidValue, err, "static channel %s", d.Label())
	}

	rawTime, ok := d.Properties[PropDateTime]
	if !ok {
		return Mapped{}, Reject(CodeMissingProperty, ErrMissingProperty, "static channel %s has no %s", d.Label(), PropDateTime)
	}
	ts, err := ToTime(rawTime)
	if err != nil {
		return Mapped{}, Reject(CodeInvalidValue, err, "static channel %s", d.Label())
	}

	return Mapped{
		Kind:       KindStatic,
		TimeSeries: timeSeriesRecord(d),
		Points:     []Datapoint{{TimestampMillis: ToMillis(ts), Value: value}},
	}, nil
}

func mapTrend(d RawChannelDescriptor) (Mapped, error) {
	if err := requireAsset(d); err != nil {
		return Mapped{}, err
	}
	if len(d.Points) == 0 {
		return Mapped{}, Reject(CodeNoData, ErrNoData, "trend %s has no valid datapoints", d.Label())
	}
	return Mapped{
		Kind:       KindTrend,
		TimeSeries: timeSeriesRecord(d),
		Points:     d.Points,
	}, nil
}

func mapWaveform(d RawChannelDescriptor) (Mapped, error) {
	if err := requireAsset(d); err != nil {
		return Mapped{}, err
	}
	w := d.Waveform
	// The first sample is treated as a header row, so a single sample
	// produces no rows.
	if w.Len() < 2 {
		return Mapped{}, Reject(CodeNoData, ErrNoData, "waveform %s has %d samples", d.Label(), w.Len())
	}
	if len(w.Times) != len(w.Values) {
		return Mapped{}, Reject(CodeInvalidValue, ErrInvalidValue,
			"waveform %s has %d timestamps for %d samples", d.Label(), len(w.Times), len(w.Values))
	}

	unit := d.Properties.Text(d.Schema.UnitKey)
	return Mapped{
		Kind: KindWaveform,
		Sequence: &SequenceRecord{
			Name:        DeriveName(d.Asset.DisplayName, signalName(d), unit),
			Description: d.Path,
			Asset:       d.Asset,
			Metadata:    StringifyProperties(d.Properties),
			Columns: []ColumnSpec{
				{Name: ColumnTime, ValueType: w.TimeType},
				{Name: ColumnValue, ValueType: w.ValueType},
			},
		},
		Waveform: w,
	}, nil
}

// BuildRows builds sequence rows for a created sequence.
//
// Rows reference the column ids assigned by the catalog. The first sample is
// skipped; row indices start at 0 and have no gaps.
func BuildRows(w *Waveform, seq Sequence) ([]Row, error) {
	timeID, valueID, err := columnIDs(seq)
	if err != nil {
		return nil, err
	}
	if w.Len() < 2 {
		return nil, nil
	}

	rows := make([]Row, 0, w.Len()-1)
	for i := 1; i < w.Len(); i++ {
		rows = append(rows, Row{
			Index: int64(i - 1),
			Values: []RowValue{
				{ColumnID: timeID, Value: w.Times[i]},
				{ColumnID: valueID, Value: rowValue(w.Values[i])},
			},
		})
	}
	return rows, nil
}

func columnIDs(seq Sequence) (timeID, valueID int64, err error) {
	var haveTime, haveValue bool
	for _, c := range seq.Columns {
		switch c.Name {
		case ColumnTime:
			timeID, haveTime = c.ID, true
		case ColumnValue:
			valueID, haveValue = c.ID, true
		}
	}
	if !haveTime || !haveValue {
		return 0, 0, fmt.Errorf("sequence %d is missing %q or %q column", seq.ID, ColumnTime, ColumnValue)
	}
	return timeID, valueID, nil
}

// rowValue converts a sample to a JSON-safe cell value.
func rowValue(v Value) any {
	switch v.Kind() {
	case ValueFloat:
		f, _ := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case ValueBool:
		if b, _ := v.Bool(); b {
			return int64(1)
		}
		return int64(0)
	case ValueTime:
		t, _ := v.Time()
		return t.UnixNano()
	default:
		return v.Native()
	}
}
