// Package meter provides peak metering of the route chain and a low
// priority goroutine that publishes meter levels.
package meter

import (
	"math"
	"sync/atomic"

	"github.com/dudk/console"
	"github.com/dudk/console/signal"
)

// Point is the position of the meter in the route chain.
type Point int

// Meter points.
const (
	Input Point = iota
	PreFader
	PostFader
	Output
	Custom
)

var pointNames = [...]string{"input", "pre", "post", "output", "custom"}

func (p Point) String() string {
	if p < 0 || int(p) >= len(pointNames) {
		return "unknown"
	}
	return pointNames[p]
}

// ParsePoint returns point by name.
func ParsePoint(s string) (Point, bool) {
	for i, n := range pointNames {
		if n == s {
			return Point(i), true
		}
	}
	return PostFader, false
}

const defaultFalloff = 13.3

// channel holds peak values as float bits, so they can be read by the
// metering goroutine without locks.
type channel struct {
	peak atomic.Uint32
	held atomic.Uint32
}

func (c *channel) load() (peak, held float32) {
	return math.Float32frombits(c.peak.Load()), math.Float32frombits(c.held.Load())
}

// PeakMeter computes running and held peaks of every stream. It never
// modifies the signal.
type PeakMeter struct {
	console.Base
	ctx     *console.Context
	falloff float64

	channels atomic.Pointer[[]channel]
	reset    atomic.Bool

	// cached falloff coefficient for the last cycle size
	frames int
	decay  float32
}

// Option configures the meter.
type Option func(*PeakMeter)

// WithFalloff sets peak falloff in dB per second.
func WithFalloff(db float64) Option {
	return func(m *PeakMeter) {
		m.falloff = db
	}
}

// WithName sets the name of the meter.
func WithName(name string) Option {
	return func(m *PeakMeter) {
		m.SetName(name)
	}
}

// New returns active meter.
func New(ctx *console.Context, options ...Option) *PeakMeter {
	m := &PeakMeter{
		Base:    console.NewBase("meter"),
		ctx:     ctx,
		falloff: defaultFalloff,
	}
	for _, option := range options {
		option(m)
	}
	empty := []channel{}
	m.channels.Store(&empty)
	m.Activate()
	return m
}

// CanSupportIO accepts any input.
func (m *PeakMeter) CanSupportIO(in signal.ChannelCount) (signal.ChannelCount, bool) {
	return in, true
}

// ConfigureIO reallocates peaks if stream count changed.
func (m *PeakMeter) ConfigureIO(in, out signal.ChannelCount) error {
	if in.Total() != len(*m.channels.Load()) {
		channels := make([]channel, in.Total())
		m.channels.Store(&channels)
	}
	return m.Base.ConfigureIO(in, out)
}

// Run captures peaks of audio streams. MIDI streams report the highest
// note-on velocity.
func (m *PeakMeter) Run(bufs *signal.BufferSet, c console.Cycle) {
	channels := *m.channels.Load()
	if m.reset.Swap(false) {
		for i := range channels {
			channels[i].peak.Store(0)
			channels[i].held.Store(0)
		}
	}
	decay := m.decayFor(c.Frames)
	audio := min(bufs.Count().Audio(), m.Input().Audio())
	for i := 0; i < audio && i < len(channels); i++ {
		m.capture(&channels[i], signal.Peak(bufs.Audio(i).Data(c.Frames), 0), decay)
	}
	midis := min(bufs.Count().MIDI(), m.Input().MIDI())
	for i := 0; i < midis && audio+i < len(channels); i++ {
		m.capture(&channels[audio+i], velocity(bufs.MIDI(i)), decay)
	}
}

func (m *PeakMeter) capture(ch *channel, p, decay float32) {
	peak, held := ch.load()
	if running := peak * decay; running > p {
		p = running
	}
	ch.peak.Store(math.Float32bits(p))
	if p > held {
		ch.held.Store(math.Float32bits(p))
	}
}

func (m *PeakMeter) decayFor(frames int) float32 {
	if frames != m.frames {
		m.frames = frames
		seconds := float64(frames) / float64(m.ctx.SampleRate())
		m.decay = signal.DBToCoefficient(-m.falloff * seconds)
	}
	return m.decay
}

func velocity(b *signal.MIDIBuffer) float32 {
	var peak uint8
	for _, e := range b.Events() {
		var ch, key, vel uint8
		if e.Message.GetNoteOn(&ch, &key, &vel) && vel > peak {
			peak = vel
		}
	}
	return float32(peak) / 127
}

// Peak returns running peak of stream i.
func (m *PeakMeter) Peak(i int) float32 {
	channels := *m.channels.Load()
	if i < 0 || i >= len(channels) {
		return 0
	}
	p, _ := channels[i].load()
	return p
}

// Held returns the highest peak of stream i since the last reset.
func (m *PeakMeter) Held(i int) float32 {
	channels := *m.channels.Load()
	if i < 0 || i >= len(channels) {
		return 0
	}
	_, h := channels[i].load()
	return h
}

// Levels appends peaks of all streams to dst.
func (m *PeakMeter) Levels(peaks, held []float32) ([]float32, []float32) {
	channels := *m.channels.Load()
	for i := range channels {
		p, h := channels[i].load()
		peaks = append(peaks, p)
		held = append(held, h)
	}
	return peaks, held
}

// Reset clears peaks on the next cycle.
func (m *PeakMeter) Reset() {
	m.reset.Store(true)
}

// State returns the meter state.
func (m *PeakMeter) State() *console.State {
	s := m.Base.State()
	s.Name = "meter"
	return s.Set("falloff", m.falloff)
}

// SetState restores the meter state.
func (m *PeakMeter) SetState(s *console.State) error {
	if err := m.Base.SetState(s); err != nil {
		return err
	}
	m.falloff = s.Float("falloff", defaultFalloff)
	m.frames = 0
	return nil
}
