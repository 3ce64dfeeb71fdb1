// Package amp provides the gain stage of the route chain.
package amp

import (
	"math"
	"sync/atomic"

	"github.com/dudk/console"
	"github.com/dudk/console/control"
	"github.com/dudk/console/signal"
)

// Declick directions.
const (
	FadeOut = -1
	FadeIn  = 1
)

// Amp applies a single scalar gain to all audio streams. Gain changes
// are interpolated across the cycle. It never changes channel count.
type Amp struct {
	console.Base
	ctx  *console.Context
	gain *control.Control

	// applied is the gain at the end of the last cycle. It's owned by
	// the real-time goroutine.
	applied float32
	// snap makes the next cycle apply the gain without a ramp.
	snap    atomic.Bool
	declick atomic.Int32
	gains   []float32
}

// Option configures amp.
type Option func(*Amp)

// WithControl makes amp use provided gain control.
func WithControl(c *control.Control) Option {
	return func(a *Amp) {
		a.gain = c
	}
}

// WithName sets the name of the amp.
func WithName(name string) Option {
	return func(a *Amp) {
		a.SetName(name)
	}
}

// Hidden makes amp invisible for reordering.
func Hidden() Option {
	return func(a *Amp) {
		a.SetVisible(false)
	}
}

// MaxGain is the upper bound of the default gain control, +6 dB.
var MaxGain = float64(signal.DBToCoefficient(6))

// New returns active amp with unity gain.
func New(ctx *console.Context, options ...Option) *Amp {
	a := &Amp{
		Base:    console.NewBase("amp"),
		ctx:     ctx,
		applied: signal.GainUnity,
	}
	for _, option := range options {
		option(a)
	}
	if a.gain == nil {
		a.gain = control.New("gain", control.WithRange(0, MaxGain, 1), control.WithBus(ctx.Bus, a.ID()))
	}
	a.gains = make([]float32, ctx.BufferSize())
	a.Activate()
	return a
}

// Activate activates the amp. The first cycle after activation applies
// the gain as is.
func (a *Amp) Activate() {
	a.snap.Store(true)
	a.Base.Activate()
}

// GainControl returns the control of the gain.
func (a *Amp) GainControl() *control.Control {
	return a.gain
}

// Gain returns current gain coefficient.
func (a *Amp) Gain() float32 {
	return float32(a.gain.Value())
}

// SetGain sets gain coefficient.
func (a *Amp) SetGain(g float32) bool {
	return a.gain.Set(float64(g))
}

// Declick schedules a transport declick for the next cycle: FadeIn ramps
// from silence, FadeOut ramps to silence.
func (a *Amp) Declick(direction int) {
	a.declick.Store(int32(direction))
}

// CanSupportIO accepts any input.
func (a *Amp) CanSupportIO(in signal.ChannelCount) (signal.ChannelCount, bool) {
	return in, true
}

// ConfigureIO makes sure automation buffer fits the cycle.
func (a *Amp) ConfigureIO(in, out signal.ChannelCount) error {
	if n := a.ctx.BufferSize(); len(a.gains) < n {
		a.gains = make([]float32, n)
	}
	a.snap.Store(true)
	return a.Base.ConfigureIO(in, out)
}

// Run applies gain. Changes are ramped, except for the first cycle after
// configuration.
func (a *Amp) Run(bufs *signal.BufferSet, c console.Cycle) {
	n := c.Frames
	snap := a.snap.Swap(false)
	channels := min(bufs.Count().Audio(), a.Input().Audio())
	if n <= len(a.gains) && a.gain.Series(c.Start, a.gains[:n]) {
		for i := 0; i < channels; i++ {
			signal.ApplyGains(bufs.Audio(i).Data(n), a.gains[:n])
		}
		a.applied = a.gains[n-1]
	} else {
		target := a.Gain()
		if snap {
			a.applied = target
		}
		for i := 0; i < channels; i++ {
			data := bufs.Audio(i).Data(n)
			if target != a.applied {
				signal.ApplyRamp(data, a.applied, target)
			} else {
				signal.ApplyGain(data, target)
			}
		}
		a.applied = target
	}
	if d := a.declick.Swap(0); d != 0 {
		declick(bufs, channels, n, min(n, a.ctx.DeclickFrames()), d)
	}
}

// declick applies a two-point ramp over the first frames of the cycle.
func declick(bufs *signal.BufferSet, channels, n, frames int, direction int32) {
	for i := 0; i < channels; i++ {
		data := bufs.Audio(i).Data(n)
		if direction == FadeIn {
			signal.ApplyRamp(data[:frames], 0, 1)
			continue
		}
		signal.ApplyRamp(data[:frames], 1, 0)
		clear(data[frames:])
	}
}

// State returns gain and automation state.
func (a *Amp) State() *console.State {
	s := a.Base.State()
	s.Name = "amp"
	return s.Set("gain", a.gain.Value()).
		Set("automation", a.gain.AutoState().String())
}

// SetState restores the amp. Invalid values keep the defaults.
func (a *Amp) SetState(s *console.State) error {
	if err := a.Base.SetState(s); err != nil {
		return err
	}
	g := s.Float("gain", a.gain.Normal())
	if math.IsNaN(g) {
		g = a.gain.Normal()
	}
	a.gain.Set(g)
	if state, ok := control.ParseAutoState(s.String("automation", "off")); ok {
		a.gain.SetAutoState(state)
	}
	return nil
}
