// Package tdmstest writes TDMS files for tests. It covers the subset of
// the format the decoder reads: scalar and string channels, one chunk per
// segment, contiguous or interleaved.
package tdmstest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/JonMunkholm/cmingest/internal/tdms"
)

const (
	leadInTag = "TDSm"

	tocMetaData        uint32 = 1 << 1
	tocNewObjList      uint32 = 1 << 2
	tocRawData         uint32 = 1 << 3
	tocInterleavedData uint32 = 1 << 5
	tocBigEndian       uint32 = 1 << 6
	tocDAQmxRawData    uint32 = 1 << 7

	noRawData      uint32 = 0xFFFFFFFF
	sameAsPrevious uint32 = 0x00000000
)

var epoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

// Property is a named property value for the Writer. Values may be string,
// bool, time.Time, float32, float64, int, int32, int64, uint32 or uint64.
type Property struct {
	Name  string
	Value any
}

// Object is an object written in a segment. An empty Group and Channel is
// the file root; an empty Channel is a group.
type Object struct {
	Group      string
	Channel    string
	Properties []Property
	DataType   tdms.DataType
	Data       []any

	// ReuseIndex writes the "same as previous segment" raw data index
	// instead of a full index.
	ReuseIndex bool
	// NoData writes the "no raw data" marker even when Data is set.
	NoData bool
}

func (o Object) path() string {
	switch {
	case o.Group == "":
		return objectPath()
	case o.Channel == "":
		return objectPath(o.Group)
	default:
		return objectPath(o.Group, o.Channel)
	}
}

// SegmentOptions controls the layout of one written segment.
type SegmentOptions struct {
	BigEndian     bool
	Interleaved   bool
	NewObjectList bool
	// RawOnly writes raw data without metadata, reusing the previous
	// segment's object list.
	RawOnly bool
	// DAQmx sets the DAQmx raw data flag without changing the layout.
	DAQmx bool
}

// Writer encodes TDMS segments.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer appending segments to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteSegment encodes objs as one segment.
func (w *Writer) WriteSegment(objs []Object, opts SegmentOptions) error {
	var order binary.ByteOrder = binary.LittleEndian
	toc := tocRawData
	if opts.BigEndian {
		order = binary.BigEndian
		toc |= tocBigEndian
	}
	if opts.Interleaved {
		toc |= tocInterleavedData
	}
	if opts.DAQmx {
		toc |= tocDAQmxRawData
	}
	if !opts.RawOnly {
		toc |= tocMetaData
		if opts.NewObjectList {
			toc |= tocNewObjList
		}
	}

	e := &encoder{order: order}
	if !opts.RawOnly {
		e.u32(uint32(len(objs)))
		for _, o := range objs {
			if err := e.object(o); err != nil {
				return err
			}
		}
	}
	meta := e.buf.Bytes()

	raw := &encoder{order: order}
	if err := raw.rawData(objs, opts.Interleaved); err != nil {
		return err
	}

	lead := &encoder{order: order}
	lead.buf.WriteString(leadInTag)
	// The table of contents is little-endian regardless of the segment.
	var tocBytes [4]byte
	binary.LittleEndian.PutUint32(tocBytes[:], toc)
	lead.buf.Write(tocBytes[:])
	lead.u32(4713)
	lead.u64(uint64(len(meta) + raw.buf.Len()))
	lead.u64(uint64(len(meta)))

	for _, b := range [][]byte{lead.buf.Bytes(), meta, raw.buf.Bytes()} {
		if _, err := w.w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

type encoder struct {
	buf   bytes.Buffer
	order binary.ByteOrder
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	e.order.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	e.order.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) object(o Object) error {
	e.str(o.path())
	switch {
	case o.NoData || len(o.Data) == 0:
		e.u32(noRawData)
	case o.ReuseIndex:
		e.u32(sameAsPrevious)
	case o.DataType == tdms.TypeString:
		e.u32(28)
		e.u32(uint32(o.DataType))
		e.u32(1)
		e.u64(uint64(len(o.Data)))
		e.u64(stringBytes(o.Data))
	default:
		e.u32(20)
		e.u32(uint32(o.DataType))
		e.u32(1)
		e.u64(uint64(len(o.Data)))
	}

	e.u32(uint32(len(o.Properties)))
	for _, p := range o.Properties {
		t, err := propertyType(p.Value)
		if err != nil {
			return fmt.Errorf("property %s: %w", p.Name, err)
		}
		e.str(p.Name)
		e.u32(uint32(t))
		if err := e.value(t, p.Value); err != nil {
			return fmt.Errorf("property %s: %w", p.Name, err)
		}
	}
	return nil
}

func (e *encoder) rawData(objs []Object, interleaved bool) error {
	var withData []Object
	for _, o := range objs {
		if !o.NoData && len(o.Data) > 0 {
			withData = append(withData, o)
		}
	}
	if interleaved {
		if len(withData) == 0 {
			return nil
		}
		for i := range withData[0].Data {
			for _, o := range withData {
				if err := e.value(o.DataType, o.Data[i]); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, o := range withData {
		if o.DataType == tdms.TypeString {
			var end uint32
			for _, v := range o.Data {
				end += uint32(len(v.(string)))
				e.u32(end)
			}
			for _, v := range o.Data {
				e.buf.WriteString(v.(string))
			}
			continue
		}
		for _, v := range o.Data {
			if err := e.value(o.DataType, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func stringBytes(data []any) uint64 {
	n := uint64(4 * len(data))
	for _, v := range data {
		n += uint64(len(v.(string)))
	}
	return n
}

func propertyType(v any) (tdms.DataType, error) {
	switch v.(type) {
	case string:
		return tdms.TypeString, nil
	case bool:
		return tdms.TypeBool, nil
	case time.Time:
		return tdms.TypeTimestamp, nil
	case float32:
		return tdms.TypeFloat32, nil
	case float64:
		return tdms.TypeFloat64, nil
	case int, int32:
		return tdms.TypeInt32, nil
	case int64:
		return tdms.TypeInt64, nil
	case uint32:
		return tdms.TypeUint32, nil
	case uint64:
		return tdms.TypeUint64, nil
	default:
		return 0, fmt.Errorf("%w: %T", tdms.ErrUnsupportedType, v)
	}
}

func (e *encoder) value(t tdms.DataType, v any) error {
	switch t {
	case tdms.TypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", v)
		}
		e.str(s)
	case tdms.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("want bool, got %T", v)
		}
		if b {
			e.buf.WriteByte(1)
		} else {
			e.buf.WriteByte(0)
		}
	case tdms.TypeTimestamp:
		ts, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("want time.Time, got %T", v)
		}
		sec, frac := timestamp(ts)
		if e.order == binary.BigEndian {
			e.u64(uint64(sec))
			e.u64(frac)
		} else {
			e.u64(frac)
			e.u64(uint64(sec))
		}
	case tdms.TypeFloat32, tdms.TypeFloat32Wu:
		e.u32(math.Float32bits(float32(asFloat(v))))
	case tdms.TypeFloat64, tdms.TypeFloat64Wu:
		e.u64(math.Float64bits(asFloat(v)))
	case tdms.TypeInt8, tdms.TypeUint8:
		e.buf.WriteByte(byte(asInt(v)))
	case tdms.TypeInt16, tdms.TypeUint16:
		var b [2]byte
		e.order.PutUint16(b[:], uint16(asInt(v)))
		e.buf.Write(b[:])
	case tdms.TypeInt32, tdms.TypeUint32:
		e.u32(uint32(asInt(v)))
	case tdms.TypeInt64, tdms.TypeUint64:
		e.u64(uint64(asInt(v)))
	default:
		return fmt.Errorf("%w: %s", tdms.ErrUnsupportedType, t)
	}
	return nil
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	default:
		return float64(asInt(v))
	}
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

// timestamp splits t into seconds since 1904 and 2^-64 fractions.
func timestamp(t time.Time) (sec int64, frac uint64) {
	sec = t.Unix() - epoch.Unix()
	frac = uint64(float64(t.Nanosecond()) / 1e9 * (1 << 64))
	return sec, frac
}

func objectPath(names ...string) string {
	if len(names) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, n := range names {
		b.WriteString("/'")
		b.WriteString(strings.ReplaceAll(n, "'", "''"))
		b.WriteString("'")
	}
	return b.String()
}
