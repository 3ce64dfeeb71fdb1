package signal

import (
	"fmt"
	"strings"
)

// DataType identifies the kind of stream a buffer carries.
type DataType int

const (
	// Audio is a stream of float samples.
	Audio DataType = iota
	// MIDI is a stream of time-stamped MIDI events.
	MIDI

	numDataTypes
)

// DataTypes lists all known data types in order.
var DataTypes = [numDataTypes]DataType{Audio, MIDI}

func (t DataType) String() string {
	switch t {
	case Audio:
		return "audio"
	case MIDI:
		return "midi"
	}
	return "unknown"
}

// ParseDataType converts the string form back to DataType.
func ParseDataType(s string) (DataType, error) {
	for _, t := range DataTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// ChannelCount maps every data type to a number of streams. It's a value
// type and comparable with ==.
type ChannelCount struct {
	n [numDataTypes]int
}

// Channels returns a count with provided audio and MIDI streams.
func Channels(audio, midi int) ChannelCount {
	var c ChannelCount
	c.n[Audio] = nonNegative(audio)
	c.n[MIDI] = nonNegative(midi)
	return c
}

// AudioChannels is a shortcut for audio-only counts.
func AudioChannels(n int) ChannelCount {
	return Channels(n, 0)
}

// Get returns number of streams of type t.
func (c ChannelCount) Get(t DataType) int {
	if t < 0 || t >= numDataTypes {
		return 0
	}
	return c.n[t]
}

// With returns a copy with streams of type t set to n.
func (c ChannelCount) With(t DataType, n int) ChannelCount {
	if t >= 0 && t < numDataTypes {
		c.n[t] = nonNegative(n)
	}
	return c
}

// Audio returns number of audio streams.
func (c ChannelCount) Audio() int {
	return c.n[Audio]
}

// MIDI returns number of MIDI streams.
func (c ChannelCount) MIDI() int {
	return c.n[MIDI]
}

// Total returns number of streams of all types.
func (c ChannelCount) Total() int {
	var total int
	for _, n := range c.n {
		total += n
	}
	return total
}

// IsZero returns true if there are no streams at all.
func (c ChannelCount) IsZero() bool {
	return c.Total() == 0
}

// Max returns per-type maximum of two counts.
func (c ChannelCount) Max(o ChannelCount) ChannelCount {
	for t := range c.n {
		if o.n[t] > c.n[t] {
			c.n[t] = o.n[t]
		}
	}
	return c
}

// Min returns per-type minimum of two counts.
func (c ChannelCount) Min(o ChannelCount) ChannelCount {
	for t := range c.n {
		if o.n[t] < c.n[t] {
			c.n[t] = o.n[t]
		}
	}
	return c
}

// Contains returns true if every type of o fits into c.
func (c ChannelCount) Contains(o ChannelCount) bool {
	for t := range c.n {
		if o.n[t] > c.n[t] {
			return false
		}
	}
	return true
}

// Less orders counts by total and then by type. It's used to pick the
// smallest acceptable configuration.
func (c ChannelCount) Less(o ChannelCount) bool {
	if c.Total() != o.Total() {
		return c.Total() < o.Total()
	}
	for t := range c.n {
		if c.n[t] != o.n[t] {
			return c.n[t] < o.n[t]
		}
	}
	return false
}

func (c ChannelCount) String() string {
	var b strings.Builder
	for t, n := range c.n {
		if t > 0 {
			b.WriteByte('/')
		}
		fmt.Fprintf(&b, "%d%s", n, DataType(t).String()[:1])
	}
	return b.String()
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
