// Package mock provides mocks of route processors and allows to execute
// integration tests.
package mock

import (
	"github.com/dudk/console"
	"github.com/dudk/console/signal"
)

// Processor mocks a console.Processor interface. It can mimic a plugin
// with fixed channel configuration.
type Processor struct {
	console.Base
	counter
	Hooks

	// Accepts is the only input accepted. Zero value accepts anything.
	Accepts signal.ChannelCount
	// Produces is the output configuration. Zero value produces input.
	Produces signal.ChannelCount
	// Gain is applied to audio when not zero.
	Gain float32
	// Delay is reported as processor latency.
	Delay int
}

// New returns active processor that accepts any input.
func New(name string) *Processor {
	m := &Processor{
		Base: console.NewBase(name),
	}
	m.Activate()
	return m
}

// Plugin returns active processor with fixed configuration.
func Plugin(name string, in, out signal.ChannelCount) *Processor {
	m := New(name)
	m.Accepts = in
	m.Produces = out
	return m
}

// CanSupportIO implements console.Processor.
func (m *Processor) CanSupportIO(in signal.ChannelCount) (signal.ChannelCount, bool) {
	if !m.Accepts.IsZero() && in != m.Accepts {
		return in, false
	}
	if m.Produces.IsZero() {
		return in, true
	}
	return m.Produces, true
}

// ConfigureIO implements console.Processor.
func (m *Processor) ConfigureIO(in, out signal.ChannelCount) error {
	if m.ErrorOnConfigure != nil {
		return m.ErrorOnConfigure
	}
	m.Configured++
	return m.Base.ConfigureIO(in, out)
}

// Run scales audio and broadcasts input to extra outputs.
func (m *Processor) Run(bufs *signal.BufferSet, c console.Cycle) {
	m.advance(c.Frames)
	in := bufs.Count().Audio()
	if m.Gain != 0 {
		for i := 0; i < in; i++ {
			signal.ApplyGain(bufs.Audio(i).Data(c.Frames), m.Gain)
		}
	}
	if in == 0 {
		return
	}
	for i := in; i < m.Output().Audio(); i++ {
		bufs.Audio(i).ReadFrom(bufs.Audio(i%in).Data(c.Frames), c.Frames)
	}
}

// Latency implements console.Latent.
func (m *Processor) Latency() int {
	return m.Delay
}

// Release implements console.Releaser.
func (m *Processor) Release() error {
	m.Released = true
	return m.ErrorOnRelease
}

// Reset implements console.Resetter.
func (m *Processor) Reset() {
	m.Resetted = true
	m.reset()
}

// State implements console.Processor.
func (m *Processor) State() *console.State {
	s := m.Base.State()
	s.Name = "mock"
	return s.Set("gain", m.Gain)
}

// SetState implements console.Processor.
func (m *Processor) SetState(s *console.State) error {
	if err := m.Base.SetState(s); err != nil {
		return err
	}
	m.Gain = float32(s.Float("gain", float64(m.Gain)))
	return nil
}

// Hooks allows to mock processor hooks.
type Hooks struct {
	Released   bool
	Resetted   bool
	Configured int

	ErrorOnConfigure error
	ErrorOnRelease   error
}

// counter counts cycles and frames.
type counter struct {
	cycles int
	frames int
}

func (c *counter) reset() {
	c.cycles, c.frames = 0, 0
}

func (c *counter) advance(frames int) {
	c.cycles++
	c.frames += frames
}

// Count returns number of cycles and frames processed.
func (c *counter) Count() (int, int) {
	return c.cycles, c.frames
}
