// Package tdms decodes National Instruments TDMS files.
//
// A TDMS file is a sequence of segments. Each segment starts with a lead-in,
// optionally carries metadata describing objects (the file root, groups and
// channels) and their properties, and optionally carries raw channel data.
// Segments without metadata reuse the object list and raw data layout of
// the previous segment.
//
// The decoder reads the whole file into memory. DAQmx raw data and the
// extended precision and complex types are not supported.
package tdms

import (
	"errors"
	"fmt"
	"time"
)

// DataType is a TDMS property or channel data type.
type DataType uint32

const (
	TypeVoid       DataType = 0x00
	TypeInt8       DataType = 0x01
	TypeInt16      DataType = 0x02
	TypeInt32      DataType = 0x03
	TypeInt64      DataType = 0x04
	TypeUint8      DataType = 0x05
	TypeUint16     DataType = 0x06
	TypeUint32     DataType = 0x07
	TypeUint64     DataType = 0x08
	TypeFloat32    DataType = 0x09
	TypeFloat64    DataType = 0x0A
	TypeFloat32Wu  DataType = 0x19 // float32 with unit
	TypeFloat64Wu  DataType = 0x1A // float64 with unit
	TypeString     DataType = 0x20
	TypeBool       DataType = 0x21
	TypeTimestamp  DataType = 0x44
	typeDAQmxRaw   DataType = 0xFFFFFFFF
	timestampBytes          = 16
)

// Size returns the encoded size in bytes of one value, or 0 for variable
// sized and unsupported types.
func (t DataType) Size() int {
	switch t {
	case TypeInt8, TypeUint8, TypeBool:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32, TypeFloat32Wu:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64, TypeFloat64Wu:
		return 8
	case TypeTimestamp:
		return timestampBytes
	default:
		return 0
	}
}

// Supported reports whether the decoder can read values of type t.
func (t DataType) Supported() bool {
	return t == TypeString || t.Size() > 0
}

func (t DataType) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeFloat32, TypeFloat32Wu:
		return "float32"
	case TypeFloat64, TypeFloat64Wu:
		return "float64"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("type(0x%x)", uint32(t))
	}
}

// Table of contents flags of a segment lead-in.
const (
	tocMetaData        uint32 = 1 << 1
	tocNewObjList      uint32 = 1 << 2
	tocRawData         uint32 = 1 << 3
	tocInterleavedData uint32 = 1 << 5
	tocBigEndian       uint32 = 1 << 6
	tocDAQmxRawData    uint32 = 1 << 7
)

const (
	leadInTag  = "TDSm"
	leadInSize = 28

	// Raw data index markers.
	noRawData        uint32 = 0xFFFFFFFF
	sameAsPrevious   uint32 = 0x00000000
	daqmxFormatIndex uint32 = 0x00001269
	daqmxDigitalLine uint32 = 0x0000126A

	// incompleteSegment is written as the next segment offset when the
	// writer crashed before finishing the segment.
	incompleteSegment uint64 = 0xFFFFFFFFFFFFFFFF
)

// Errors returned by the decoder.
var (
	ErrNotTDMS         = errors.New("tdms: missing TDSm lead-in")
	ErrDAQmx           = errors.New("tdms: DAQmx raw data is not supported")
	ErrUnsupportedType = errors.New("tdms: unsupported data type")
	ErrCorrupt         = errors.New("tdms: corrupt segment")
	ErrNoTimeTrack     = errors.New("tdms: channel has no waveform timing properties")
)

// tdmsEpoch is the origin of TDMS timestamps.
var tdmsEpoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

// Properties holds decoded property values. Values are normalized to int64,
// uint64, float64, string, bool or time.Time.
type Properties map[string]any

// Float returns a numeric property as float64.
func (p Properties) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Time returns a timestamp property.
func (p Properties) Time(key string) (time.Time, bool) {
	t, ok := p[key].(time.Time)
	return t, ok
}
