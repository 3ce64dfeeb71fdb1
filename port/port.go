// Package port provides the registry of named ports which bind the
// processing graph to the audio backend and to each other.
package port

import (
	"sync/atomic"

	"github.com/dudk/console/signal"
)

// Direction of the port from the registry point of view.
type Direction int

const (
	// Input ports receive signal from connected outputs.
	Input Direction = iota
	// Output ports provide signal to connected inputs.
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Port is a named endpoint of a single data stream.
type Port struct {
	name     string
	dir      Direction
	typ      signal.DataType
	physical bool

	audio *signal.AudioBuffer
	midi  *signal.MIDIBuffer

	// connections is replaced as a whole, so the real-time thread can read
	// it without locks.
	connections atomic.Pointer[[]*Port]
	// mixedAt is the cycle in which the input buffer was last mixed.
	mixedAt  uint64
	registry *Registry
	latency  int
}

// Name returns the full port name.
func (p *Port) Name() string {
	return p.name
}

// Direction returns the port direction.
func (p *Port) Direction() Direction {
	return p.dir
}

// Type returns data type of the port.
func (p *Port) Type() signal.DataType {
	return p.typ
}

// Physical returns true if the port belongs to the hardware.
func (p *Port) Physical() bool {
	return p.physical
}

// Latency returns the port latency in frames.
func (p *Port) Latency() int {
	return p.latency
}

// SetLatency sets the port latency in frames.
func (p *Port) SetLatency(frames int) {
	p.latency = frames
}

// Connected returns true if the port has at least one connection.
func (p *Port) Connected() bool {
	return len(p.Connections()) > 0
}

// Connections returns current connections snapshot.
func (p *Port) Connections() []*Port {
	if c := p.connections.Load(); c != nil {
		return *c
	}
	return nil
}

// Attach binds audio buffer of the port to backend memory for this cycle.
func (p *Port) Attach(external []signal.Sample) {
	if p.audio != nil {
		p.audio.Attach(external)
	}
}

// AudioBuffer returns the port's own audio buffer. It's used by the writer
// of output ports and backends.
func (p *Port) AudioBuffer() *signal.AudioBuffer {
	return p.audio
}

// MIDIBuffer returns the port's own MIDI buffer.
func (p *Port) MIDIBuffer() *signal.MIDIBuffer {
	return p.midi
}

// Audio returns audio samples of the port for the current cycle. For
// input ports it's the mix of all connected outputs. A single connection
// is returned without copying.
func (p *Port) Audio(nframes int) []signal.Sample {
	if p.audio == nil {
		return nil
	}
	if p.dir == Output {
		return p.audio.Data(nframes)
	}
	conns := p.Connections()
	switch len(conns) {
	case 0:
		p.audio.Silence(nframes, 0)
		return p.audio.Data(nframes)
	case 1:
		return conns[0].audio.Data(nframes)
	}
	if cycle := p.registry.Cycle(); p.mixedAt != cycle {
		p.mixedAt = cycle
		p.audio.ReadFrom(conns[0].audio.Data(nframes), nframes)
		for _, c := range conns[1:] {
			p.audio.AcceptFrom(c.audio.Data(nframes), nframes)
		}
	}
	return p.audio.Data(nframes)
}

// MIDI returns MIDI events of the port for the current cycle.
func (p *Port) MIDI() *signal.MIDIBuffer {
	if p.midi == nil {
		return nil
	}
	if p.dir == Output {
		return p.midi
	}
	if cycle := p.registry.Cycle(); p.mixedAt != cycle {
		p.mixedAt = cycle
		p.midi.Silence()
		for _, c := range p.Connections() {
			p.midi.Merge(c.midi)
		}
	}
	return p.midi
}

// cycleStart prepares port for the new cycle.
func (p *Port) cycleStart(nframes int) {
	if p.dir == Output && !p.physical {
		if p.audio != nil {
			p.audio.Silence(nframes, 0)
		}
		if p.midi != nil {
			p.midi.Silence()
		}
	}
}

// cycleEnd releases memory attached for the cycle.
func (p *Port) cycleEnd() {
	if p.audio != nil {
		p.audio.Detach()
	}
}

func (p *Port) addConnection(o *Port) bool {
	current := p.Connections()
	for _, c := range current {
		if c == o {
			return false
		}
	}
	next := make([]*Port, len(current), len(current)+1)
	copy(next, current)
	next = append(next, o)
	p.connections.Store(&next)
	return true
}

func (p *Port) removeConnection(o *Port) bool {
	current := p.Connections()
	next := make([]*Port, 0, len(current))
	found := false
	for _, c := range current {
		if c == o {
			found = true
			continue
		}
		next = append(next, c)
	}
	if found {
		p.connections.Store(&next)
	}
	return found
}
