package tdms

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// tdmsEpochUnix is tdmsEpoch in Unix seconds.
const tdmsEpochUnix = -2082844800

// rawIndex describes the raw data an object contributes to each chunk.
type rawIndex struct {
	dataType  DataType
	numValues uint64
	totalSize uint64 // strings only
}

// chunkBytes returns the bytes the object occupies in one chunk.
func (ix *rawIndex) chunkBytes() uint64 {
	if ix.dataType == TypeString {
		return ix.totalSize
	}
	return ix.numValues * uint64(ix.dataType.Size())
}

// object tracks an object across segments.
type object struct {
	path      string
	props     Properties
	lastIndex *rawIndex
	channel   *Channel
}

// segmentObject is an entry of a segment's ordered object list.
type segmentObject struct {
	obj   *object
	index *rawIndex // nil when the object has no data in the segment
}

type decoder struct {
	buf     []byte
	file    *File
	objects map[string]*object
	active  []segmentObject
}

// Open decodes the TDMS file at path.
func Open(path string) (*File, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Read decodes a TDMS file from r.
func Read(r io.Reader) (*File, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Decode decodes a complete TDMS file held in buf.
func Decode(buf []byte) (*File, error) {
	d := &decoder{
		buf:     buf,
		file:    &File{Properties: Properties{}},
		objects: make(map[string]*object),
	}
	if len(buf) < leadInSize || !bytes.Equal(buf[:4], []byte(leadInTag)) {
		return nil, ErrNotTDMS
	}

	pos := 0
	for pos < len(buf) {
		next, err := d.segment(pos)
		if err != nil {
			return nil, fmt.Errorf("segment at offset %d: %w", pos, err)
		}
		pos = next
	}
	return d.file, nil
}

// segment decodes the segment starting at pos and returns the offset of the
// following segment.
func (d *decoder) segment(pos int) (int, error) {
	if len(d.buf)-pos < leadInSize {
		return 0, fmt.Errorf("%w: truncated lead-in", ErrCorrupt)
	}
	if !bytes.Equal(d.buf[pos:pos+4], []byte(leadInTag)) {
		return 0, ErrNotTDMS
	}

	toc := binary.LittleEndian.Uint32(d.buf[pos+4:])
	if toc&tocDAQmxRawData != 0 {
		return 0, ErrDAQmx
	}
	var order binary.ByteOrder = binary.LittleEndian
	if toc&tocBigEndian != 0 {
		order = binary.BigEndian
	}
	nextOffset := order.Uint64(d.buf[pos+12:])
	rawOffset := order.Uint64(d.buf[pos+20:])

	start := pos + leadInSize
	end := len(d.buf)
	if nextOffset != incompleteSegment && nextOffset <= uint64(len(d.buf)-start) {
		end = start + int(nextOffset)
	}
	if rawOffset > uint64(end-start) {
		return 0, fmt.Errorf("%w: raw data offset %d past segment end", ErrCorrupt, rawOffset)
	}

	if toc&tocMetaData != 0 {
		c := &cursor{buf: d.buf[start : start+int(rawOffset)], order: order}
		if err := d.metadata(c, toc&tocNewObjList != 0); err != nil {
			return 0, err
		}
	}

	if toc&tocRawData != 0 {
		c := &cursor{buf: d.buf[start+int(rawOffset) : end], order: order}
		if err := d.rawData(c, toc&tocInterleavedData != 0); err != nil {
			return 0, err
		}
	}
	return end, nil
}

func (d *decoder) metadata(c *cursor, newList bool) error {
	var active []segmentObject
	if !newList {
		active = append(active, d.active...)
	}

	count, err := c.u32()
	if err != nil {
		return err
	}
	for range count {
		path, err := c.str()
		if err != nil {
			return err
		}
		obj, err := d.object(path)
		if err != nil {
			return err
		}

		index, err := d.rawIndex(c, obj)
		if err != nil {
			return fmt.Errorf("object %s: %w", path, err)
		}
		if index != nil {
			obj.lastIndex = index
			if obj.channel != nil {
				obj.channel.DataType = index.dataType
			}
		}

		replaced := false
		for i := range active {
			if active[i].obj == obj {
				active[i].index = index
				replaced = true
				break
			}
		}
		if !replaced {
			active = append(active, segmentObject{obj: obj, index: index})
		}

		nprops, err := c.u32()
		if err != nil {
			return err
		}
		for range nprops {
			name, err := c.str()
			if err != nil {
				return err
			}
			t, err := c.u32()
			if err != nil {
				return err
			}
			v, err := c.value(DataType(t))
			if err != nil {
				return fmt.Errorf("property %s of %s: %w", name, path, err)
			}
			obj.props[name] = v
		}
	}
	d.active = active
	return nil
}

func (d *decoder) rawIndex(c *cursor, obj *object) (*rawIndex, error) {
	length, err := c.u32()
	if err != nil {
		return nil, err
	}
	switch length {
	case noRawData:
		return nil, nil
	case sameAsPrevious:
		if obj.lastIndex == nil {
			return nil, fmt.Errorf("%w: index reuse without a previous index", ErrCorrupt)
		}
		return obj.lastIndex, nil
	case daqmxFormatIndex, daqmxDigitalLine:
		return nil, ErrDAQmx
	}

	t, err := c.u32()
	if err != nil {
		return nil, err
	}
	dim, err := c.u32()
	if err != nil {
		return nil, err
	}
	if dim != 1 {
		return nil, fmt.Errorf("%w: array dimension %d", ErrCorrupt, dim)
	}
	n, err := c.u64()
	if err != nil {
		return nil, err
	}
	ix := &rawIndex{dataType: DataType(t), numValues: n}
	if !ix.dataType.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ix.dataType)
	}
	if size := uint64(ix.dataType.Size()); size > 0 && n > math.MaxInt64/size {
		return nil, fmt.Errorf("%w: value count %d", ErrCorrupt, n)
	}
	if ix.dataType == TypeString {
		if ix.totalSize, err = c.u64(); err != nil {
			return nil, err
		}
		if ix.totalSize > math.MaxInt64 {
			return nil, fmt.Errorf("%w: string data size %d", ErrCorrupt, ix.totalSize)
		}
	}
	return ix, nil
}

// object returns the tracked object for path, creating the group or channel
// it names on first sight.
func (d *decoder) object(path string) (*object, error) {
	if obj, ok := d.objects[path]; ok {
		return obj, nil
	}
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	obj := &object{path: path}
	switch len(parts) {
	case 0:
		obj.props = d.file.Properties
	case 1:
		g := d.group(parts[0])
		obj.props = g.Properties
	case 2:
		g := d.group(parts[0])
		ch := &Channel{Group: g.Name, Name: parts[1], Properties: Properties{}}
		g.channels = append(g.channels, ch)
		obj.props = ch.Properties
		obj.channel = ch
	}
	d.objects[path] = obj
	return obj, nil
}

func (d *decoder) group(name string) *Group {
	if g, ok := d.file.Group(name); ok {
		return g
	}
	g := &Group{Name: name, Properties: Properties{}}
	d.file.groups = append(d.file.groups, g)
	return g
}

func (d *decoder) rawData(c *cursor, interleaved bool) error {
	var withData []segmentObject
	var chunk uint64
	for _, so := range d.active {
		if so.index == nil || so.index.numValues == 0 {
			continue
		}
		withData = append(withData, so)
		chunk += so.index.chunkBytes()
	}
	if chunk == 0 {
		return nil
	}

	chunks := uint64(len(c.buf)) / chunk
	for range chunks {
		var err error
		if interleaved {
			err = readInterleaved(c, withData)
		} else {
			err = readContiguous(c, withData)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readContiguous(c *cursor, objs []segmentObject) error {
	for _, so := range objs {
		ch := so.obj.channel
		if so.index.dataType == TypeString {
			values, err := c.strings(so.index.numValues)
			if err != nil {
				return err
			}
			if ch != nil {
				ch.data = append(ch.data, values...)
				ch.hasData = true
			}
			continue
		}
		if err := c.fits(so.index); err != nil {
			return err
		}
		for range so.index.numValues {
			v, err := c.value(so.index.dataType)
			if err != nil {
				return err
			}
			if ch != nil {
				ch.data = append(ch.data, v)
			}
		}
		if ch != nil {
			ch.hasData = true
		}
	}
	return nil
}

func readInterleaved(c *cursor, objs []segmentObject) error {
	n := objs[0].index.numValues
	for _, so := range objs {
		if so.index.dataType == TypeString {
			return fmt.Errorf("%w: interleaved string data", ErrCorrupt)
		}
		if so.index.numValues != n {
			return fmt.Errorf("%w: interleaved channels differ in length", ErrCorrupt)
		}
		if err := c.fits(so.index); err != nil {
			return err
		}
	}
	for range n {
		for _, so := range objs {
			v, err := c.value(so.index.dataType)
			if err != nil {
				return err
			}
			if ch := so.obj.channel; ch != nil {
				ch.data = append(ch.data, v)
				ch.hasData = true
			}
		}
	}
	return nil
}

// cursor reads values from a segment region.
type cursor struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || len(c.buf)-c.pos < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrCorrupt, n, c.pos)
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) remaining() uint64 {
	return uint64(len(c.buf) - c.pos)
}

// fits fails with ErrCorrupt unless the bytes left can hold the values an
// index declares. It runs before anything is sized from the declared count.
func (c *cursor) fits(ix *rawIndex) error {
	left := c.remaining()
	if ix.dataType == TypeString {
		if ix.numValues > left/4 || ix.totalSize > left {
			return fmt.Errorf("%w: %d strings in %d bytes exceed the %d bytes left",
				ErrCorrupt, ix.numValues, ix.totalSize, left)
		}
		return nil
	}
	if size := uint64(ix.dataType.Size()); size > 0 && ix.numValues > left/size {
		return fmt.Errorf("%w: %d %s values exceed the %d bytes left",
			ErrCorrupt, ix.numValues, ix.dataType, left)
	}
	return nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return c.order.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return c.order.Uint64(b), nil
}

func (c *cursor) str() (string, error) {
	n, err := c.u32()
	if err != nil {
		return "", err
	}
	b, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// strings reads a raw string array: n end offsets followed by the
// concatenated string bytes.
func (c *cursor) strings(n uint64) ([]any, error) {
	if n > c.remaining()/4 {
		return nil, fmt.Errorf("%w: %d string offsets exceed the %d bytes left", ErrCorrupt, n, c.remaining())
	}
	ends := make([]uint32, n)
	for i := range ends {
		v, err := c.u32()
		if err != nil {
			return nil, err
		}
		ends[i] = v
	}
	var total uint32
	if n > 0 {
		total = ends[n-1]
	}
	data, err := c.take(int(total))
	if err != nil {
		return nil, err
	}
	out := make([]any, n)
	var prev uint32
	for i, end := range ends {
		if end < prev || end > total {
			return nil, fmt.Errorf("%w: string offset %d out of range", ErrCorrupt, end)
		}
		out[i] = string(data[prev:end])
		prev = end
	}
	return out, nil
}

func (c *cursor) value(t DataType) (any, error) {
	if t == TypeString {
		return c.str()
	}
	size := t.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	b, err := c.take(size)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeInt8:
		return int64(int8(b[0])), nil
	case TypeInt16:
		return int64(int16(c.order.Uint16(b))), nil
	case TypeInt32:
		return int64(int32(c.order.Uint32(b))), nil
	case TypeInt64:
		return int64(c.order.Uint64(b)), nil
	case TypeUint8:
		return uint64(b[0]), nil
	case TypeUint16:
		return uint64(c.order.Uint16(b)), nil
	case TypeUint32:
		return uint64(c.order.Uint32(b)), nil
	case TypeUint64:
		return c.order.Uint64(b), nil
	case TypeFloat32, TypeFloat32Wu:
		return float64(math.Float32frombits(c.order.Uint32(b))), nil
	case TypeFloat64, TypeFloat64Wu:
		return math.Float64frombits(c.order.Uint64(b)), nil
	case TypeBool:
		return b[0] != 0, nil
	case TypeTimestamp:
		var frac uint64
		var sec int64
		if c.order == binary.BigEndian {
			sec = int64(c.order.Uint64(b[:8]))
			frac = c.order.Uint64(b[8:])
		} else {
			frac = c.order.Uint64(b[:8])
			sec = int64(c.order.Uint64(b[8:]))
		}
		return timestampToTime(sec, frac), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

// timestampToTime converts seconds since 1904 plus 2^-64 fractions to UTC.
func timestampToTime(sec int64, frac uint64) time.Time {
	ns := int64(math.Round(float64(frac) / (1 << 64) * 1e9))
	return time.Unix(sec+tdmsEpochUnix, ns).UTC()
}
