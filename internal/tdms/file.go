package tdms

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// File is a decoded TDMS file.
type File struct {
	Properties Properties
	groups     []*Group
}

// Group is a named collection of channels.
type Group struct {
	Name       string
	Properties Properties
	channels   []*Channel
}

// Channel is a named series of values of a single data type.
type Channel struct {
	Group      string
	Name       string
	Properties Properties
	DataType   DataType
	data       []any
	hasData    bool
}

// Groups returns the groups in file order.
func (f *File) Groups() []*Group { return f.groups }

// Group returns the group called name.
func (f *File) Group(name string) (*Group, bool) {
	for _, g := range f.groups {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// Channels returns every channel of every group in file order.
func (f *File) Channels() []*Channel {
	var out []*Channel
	for _, g := range f.groups {
		out = append(out, g.channels...)
	}
	return out
}

// Channels returns the channels of the group in file order.
func (g *Group) Channels() []*Channel { return g.channels }

// Channel returns the channel called name.
func (g *Group) Channel(name string) (*Channel, bool) {
	for _, c := range g.channels {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Path returns the TDMS object path of the channel: /'group'/'channel'.
func (c *Channel) Path() string {
	return objectPath(c.Group, c.Name)
}

// HasData reports whether any segment carried raw data for the channel.
func (c *Channel) HasData() bool { return c.hasData && len(c.data) > 0 }

// Len returns the number of decoded values.
func (c *Channel) Len() int { return len(c.data) }

// Data returns the decoded values. Elements are int64, uint64, float64,
// string, bool or time.Time depending on DataType.
func (c *Channel) Data() []any { return c.data }

// AllZero reports whether every value equals the zero value of its type.
func (c *Channel) AllZero() bool {
	for _, v := range c.data {
		if !isZero(v) {
			return false
		}
	}
	return true
}

// TimeTrack returns the absolute sample times of a waveform channel in
// nanoseconds since the Unix epoch:
//
//	wf_start_time + wf_start_offset + i*wf_increment
//
// wf_start_offset defaults to zero. ErrNoTimeTrack is returned when
// wf_start_time or wf_increment is missing.
func (c *Channel) TimeTrack() ([]int64, error) {
	start, ok := c.Properties.Time("wf_start_time")
	if !ok {
		return nil, fmt.Errorf("%w: %s has no wf_start_time", ErrNoTimeTrack, c.Path())
	}
	inc, ok := c.Properties.Float("wf_increment")
	if !ok {
		return nil, fmt.Errorf("%w: %s has no wf_increment", ErrNoTimeTrack, c.Path())
	}
	offset, _ := c.Properties.Float("wf_start_offset")

	base := start.UnixNano()
	times := make([]int64, len(c.data))
	for i := range times {
		seconds := offset + float64(i)*inc
		times[i] = base + int64(math.Round(seconds*float64(time.Second)))
	}
	return times, nil
}

func isZero(v any) bool {
	switch x := v.(type) {
	case int64:
		return x == 0
	case uint64:
		return x == 0
	case float64:
		return x == 0
	case bool:
		return !x
	case string:
		return x == ""
	case time.Time:
		return x.Equal(tdmsEpoch)
	default:
		return v == nil
	}
}

// objectPath builds an object path, escaping single quotes in names.
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

// splitPath parses an object path into its components. The root path "/"
// yields no components.
func splitPath(path string) ([]string, error) {
	if path == "/" {
		return nil, nil
	}
	var parts []string
	i := 0
	for i < len(path) {
		if path[i] != '/' || i+1 >= len(path) || path[i+1] != '\'' {
			return nil, fmt.Errorf("%w: invalid object path %q", ErrCorrupt, path)
		}
		i += 2
		var b strings.Builder
		closed := false
		for i < len(path) {
			if path[i] == '\'' {
				if i+1 < len(path) && path[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				i++
				closed = true
				break
			}
			b.WriteByte(path[i])
			i++
		}
		if !closed {
			return nil, fmt.Errorf("%w: unterminated object path %q", ErrCorrupt, path)
		}
		parts = append(parts, b.String())
	}
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: object path too deep %q", ErrCorrupt, path)
	}
	return parts, nil
}
