package core

import (
	"context"
	"time"
)

// Kind classifies a raw channel descriptor.
type Kind int

const (
	// KindEmpty is a channel with no usable data.
	KindEmpty Kind = iota
	// KindStatic is a single timestamped reading stored as channel properties.
	KindStatic
	// KindWaveform is a channel with a full sample buffer and time track.
	KindWaveform
	// KindTrend is a bundle trend: timestamped samples bound for a time series.
	KindTrend
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindWaveform:
		return "waveform"
	case KindTrend:
		return "trend"
	default:
		return "empty"
	}
}

// ElementType is the native element type of a sample buffer or time track.
type ElementType string

const (
	ElemInt8        ElementType = "int8"
	ElemInt16       ElementType = "int16"
	ElemInt32       ElementType = "int32"
	ElemInt64       ElementType = "int64"
	ElemUint8       ElementType = "uint8"
	ElemUint16      ElementType = "uint16"
	ElemUint32      ElementType = "uint32"
	ElemUint64      ElementType = "uint64"
	ElemFloat32     ElementType = "float32"
	ElemFloat64     ElementType = "float64"
	ElemBool        ElementType = "bool"
	ElemString      ElementType = "string"
	ElemTimestamp   ElementType = "timestamp"
	ElemTimestampNs ElementType = "timestamp[ns]"
)

// Catalog value types for sequence columns.
const (
	CatalogDouble = "DOUBLE"
	CatalogLong   = "LONG"
	CatalogString = "STRING"
)

// CatalogType maps the element type to a catalog column value type.
func (e ElementType) CatalogType() string {
	switch e {
	case ElemFloat32, ElemFloat64:
		return CatalogDouble
	case ElemString:
		return CatalogString
	default:
		return CatalogLong
	}
}

// PropertySchema names the format-specific property keys the mapper reads.
type PropertySchema struct {
	SignalKey      string // Display name of the channel or trend
	UnitKey        string // Engineering unit
	DescriptionKey string // Time series description
}

// Static channel property keys.
const (
	PropValue    = "Value"
	PropDateTime = "DateTime"
	PropGroup    = "Group"
	PropChannel  = "Channel"
)

// AssetRef identifies the source asset owning a channel.
// An empty ExternalUID means the channel has no asset association.
type AssetRef struct {
	ExternalUID string
	DisplayName string
}

// Waveform is the sample buffer of a waveform channel.
// Times and Values are aligned 1:1.
type Waveform struct {
	TimeType  ElementType
	Times     []int64 // nanoseconds since the Unix epoch
	ValueType ElementType
	Values    []Value
}

// Len returns the number of samples.
func (w *Waveform) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Values)
}

// RawChannelDescriptor is one channel (or trend) as read from an artifact.
// Descriptors are created by a FormatReader and never mutated afterwards.
type RawChannelDescriptor struct {
	Artifact   string
	Group      string
	Channel    string
	Path       string
	Kind       Kind
	Properties Properties
	Asset      AssetRef
	Schema     PropertySchema
	Waveform   *Waveform
	Points     []Datapoint
}

// Label returns a short identifier for logging.
func (d RawChannelDescriptor) Label() string {
	if d.Path != "" {
		return d.Path
	}
	if d.Group != "" {
		return d.Group + "/" + d.Channel
	}
	return d.Channel
}

// Datapoint is a single numeric time series sample.
type Datapoint struct {
	TimestampMillis int64   `json:"timestamp"`
	Value           float64 `json:"value"`
}

// TimeSeriesRecord is the canonical time series derived from a descriptor.
type TimeSeriesRecord struct {
	Name        string
	Unit        string
	Description string
	Asset       AssetRef
	Metadata    map[string]string
}

// ColumnSpec describes one sequence column before creation.
type ColumnSpec struct {
	Name      string
	ValueType ElementType
}

// SequenceRecord is the canonical sequence derived from a waveform channel.
type SequenceRecord struct {
	Name        string
	Description string
	Asset       AssetRef
	Metadata    map[string]string
	Columns     []ColumnSpec
}

// RowValue is one cell of a sequence row.
type RowValue struct {
	ColumnID int64 `json:"columnId"`
	Value    any   `json:"value"`
}

// Row is one sequence row. Index is 0-based and contiguous.
type Row struct {
	Index  int64      `json:"rowNumber"`
	Values []RowValue `json:"values"`
}

// Mapped is the result of mapping a descriptor.
type Mapped struct {
	Kind       Kind
	TimeSeries *TimeSeriesRecord
	Sequence   *SequenceRecord
	Points     []Datapoint
	Waveform   *Waveform
}

// Asset is a catalog asset.
type Asset struct {
	ID         int64             `json:"id,omitempty"`
	ExternalID string            `json:"externalId,omitempty"`
	Name       string            `json:"name"`
	ParentID   *int64            `json:"parentId,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TimeSeries is a catalog time series.
type TimeSeries struct {
	ID          int64             `json:"id,omitempty"`
	Name        string            `json:"name"`
	Unit        string            `json:"unit,omitempty"`
	Description string            `json:"description,omitempty"`
	AssetID     *int64            `json:"assetId,omitempty"`
	IsString    bool              `json:"isString"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Column is a catalog sequence column. ID is assigned by the catalog.
type Column struct {
	ID         int64  `json:"id,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
	Name       string `json:"name"`
	ValueType  string `json:"valueType"`
}

// Sequence is a catalog sequence.
type Sequence struct {
	ID          int64             `json:"id,omitempty"`
	ExternalID  string            `json:"externalId,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	AssetID     *int64            `json:"assetId,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Columns     []Column          `json:"columns"`
}

// Catalog is the remote catalog collaborator.
//
// List operations return candidates only; exact matching is the caller's job.
type Catalog interface {
	ListAssetsByMetadata(ctx context.Context, metadata map[string]string) ([]Asset, error)
	ListTimeSeriesByPrefix(ctx context.Context, prefix string) ([]TimeSeries, error)
	CreateTimeSeries(ctx context.Context, ts TimeSeries) (TimeSeries, error)
	CreateSequence(ctx context.Context, seq Sequence) (Sequence, error)
	InsertSequenceRows(ctx context.Context, sequenceID int64, rows []Row) error
	InsertDatapoints(ctx context.Context, name string, points []Datapoint) error
}

// ArtifactState is the processing state of one artifact.
type ArtifactState string

const (
	StateDiscovered ArtifactState = "discovered"
	StateParsed     ArtifactState = "parsed"
	StateCompleted  ArtifactState = "completed"
	StateFailed     ArtifactState = "failed"
)

// ChannelState is the processing state of one channel.
type ChannelState string

const (
	ChannelMapped     ChannelState = "mapped"
	ChannelReconciled ChannelState = "reconciled"
	ChannelSubmitted  ChannelState = "submitted"
	ChannelRejected   ChannelState = "rejected"
)

// Status summarizes an artifact outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ChannelOutcome is the result of processing one channel.
type ChannelOutcome struct {
	Channel string
	Kind    Kind
	Name    string // canonical record name, empty if mapping failed
	State   ChannelState
	Points  int // datapoints or sequence rows submitted
	Err     error
}

// ArtifactOutcome is the result of processing one artifact.
type ArtifactOutcome struct {
	Path     string
	Format   string
	State    ArtifactState
	Channels []ChannelOutcome
	Duration time.Duration
	Err      error // set when State is StateFailed
}

// Status derives the outcome status from the channel results.
func (o ArtifactOutcome) Status() Status {
	if o.State == StateFailed {
		return StatusFailed
	}
	for _, ch := range o.Channels {
		if ch.State != ChannelSubmitted {
			return StatusPartial
		}
	}
	return StatusSuccess
}

// Submitted returns the number of channels that reached ChannelSubmitted.
func (o ArtifactOutcome) Submitted() int {
	n := 0
	for _, ch := range o.Channels {
		if ch.State == ChannelSubmitted {
			n++
		}
	}
	return n
}
