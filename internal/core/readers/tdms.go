package readers

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/JonMunkholm/cmingest/internal/core"
	"github.com/JonMunkholm/cmingest/internal/logging"
	"github.com/JonMunkholm/cmingest/internal/tdms"
)

// TDMS property keys written by InsightCM.
const (
	tdmsAssetUIDKey  = "NI_CM_AssetNodeId"
	tdmsAssetNameKey = "NI_CM_AssetName"
)

// tdmsSchema names the channel properties the mapper reads.
var tdmsSchema = core.PropertySchema{
	SignalKey:      "name",
	UnitKey:        "unit_string",
	DescriptionKey: "NI_CM_Reason",
}

func init() {
	core.Register(core.FormatDefinition{
		Info: core.FormatInfo{
			Key:       "tdms",
			Label:     "NI TDMS waveform",
			Extension: ".tdms",
		},
		NewReader: func(core.ReaderOptions) core.FormatReader {
			return NewTDMSReader()
		},
	})
}

// TDMSReader reads InsightCM waveform recordings stored as TDMS files.
type TDMSReader struct{}

// NewTDMSReader returns a TDMSReader.
func NewTDMSReader() *TDMSReader { return &TDMSReader{} }

// Read decodes the file at path and returns one descriptor per channel.
//
// Every descriptor's property bag merges the file properties, the channel
// properties (which win on conflict) and the derived Group and Channel
// names. Waveform channels without timing properties are skipped.
func (r *TDMSReader) Read(ctx context.Context, path string) ([]core.RawChannelDescriptor, error) {
	log := logging.WithFields(ctx, "artifact", path)

	f, err := tdms.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode tdms: %w", err)
	}
	fileProps := tdmsProperties(f.Properties)

	var out []core.RawChannelDescriptor
	for _, ch := range f.Channels() {
		channelProps := tdmsProperties(ch.Properties)

		props := fileProps.Clone()
		props.Merge(channelProps)
		props[core.PropGroup] = core.StringValue(ch.Group)
		props[core.PropChannel] = core.StringValue(ch.Name)

		d := core.RawChannelDescriptor{
			Artifact:   path,
			Group:      ch.Group,
			Channel:    ch.Name,
			Path:       ch.Path(),
			Properties: props,
			Asset: core.AssetRef{
				ExternalUID: props.Text(tdmsAssetUIDKey),
				DisplayName: props.Text(tdmsAssetNameKey),
			},
			Schema: tdmsSchema,
		}

		switch {
		case ch.HasData() && !ch.AllZero():
			w, err := tdmsWaveform(ch)
			if err != nil {
				log.Warn("skipping channel", "channel", ch.Path(), "error", err)
				continue
			}
			d.Kind = core.KindWaveform
			d.Waveform = w
		case isStatic(channelProps, props):
			d.Kind = core.KindStatic
		default:
			d.Kind = core.KindEmpty
		}
		out = append(out, d)
	}
	return out, nil
}

// isStatic reports whether an empty channel carries a single reading: a
// truthy Value on the channel itself and a DateTime anywhere in the merged
// properties.
func isStatic(channel, merged core.Properties) bool {
	if _, ok := channel.Lookup(core.PropValue); !ok {
		return false
	}
	_, ok := merged.Lookup(core.PropDateTime)
	return ok
}

func tdmsWaveform(ch *tdms.Channel) (*core.Waveform, error) {
	times, err := ch.TimeTrack()
	if err != nil {
		return nil, err
	}
	values := make([]core.Value, ch.Len())
	for i, v := range ch.Data() {
		values[i] = tdmsValue(v)
	}
	return &core.Waveform{
		TimeType:  core.ElemTimestampNs,
		Times:     times,
		ValueType: tdmsElementType(ch.DataType),
		Values:    values,
	}, nil
}

func tdmsProperties(p tdms.Properties) core.Properties {
	out := make(core.Properties, len(p))
	for k, v := range p {
		out[k] = tdmsValue(v)
	}
	return out
}

func tdmsValue(v any) core.Value {
	switch x := v.(type) {
	case int64:
		return core.IntValue(x)
	case uint64:
		if x > math.MaxInt64 {
			return core.FloatValue(float64(x))
		}
		return core.IntValue(int64(x))
	case float64:
		return core.FloatValue(x)
	case bool:
		return core.BoolValue(x)
	case string:
		return core.StringValue(x)
	case time.Time:
		return core.TimeValue(x)
	default:
		return core.StringValue(fmt.Sprint(v))
	}
}

func tdmsElementType(t tdms.DataType) core.ElementType {
	switch t {
	case tdms.TypeInt8:
		return core.ElemInt8
	case tdms.TypeInt16:
		return core.ElemInt16
	case tdms.TypeInt32:
		return core.ElemInt32
	case tdms.TypeInt64:
		return core.ElemInt64
	case tdms.TypeUint8:
		return core.ElemUint8
	case tdms.TypeUint16:
		return core.ElemUint16
	case tdms.TypeUint32:
		return core.ElemUint32
	case tdms.TypeUint64:
		return core.ElemUint64
	case tdms.TypeFloat32, tdms.TypeFloat32Wu:
		return core.ElemFloat32
	case tdms.TypeBool:
		return core.ElemBool
	case tdms.TypeString:
		return core.ElemString
	case tdms.TypeTimestamp:
		return core.ElemTimestamp
	default:
		return core.ElemFloat64
	}
}
