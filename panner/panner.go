// Package panner distributes input streams across output streams
// according to a panning law.
package panner

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/dudk/console"
	"github.com/dudk/console/control"
	"github.com/dudk/console/signal"
)

// Law is a distribution function of the panner.
type Law int

const (
	// EqualPower keeps constant power between adjacent outputs.
	EqualPower Law = iota
	// Balance attenuates one side of a stereo pair.
	Balance
	// Linear keeps constant amplitude between adjacent outputs.
	Linear
)

// DefaultLaw is used when no law is configured or restored law is unknown.
const DefaultLaw = EqualPower

var lawNames = [...]string{"equal-power", "balance", "linear"}

func (l Law) String() string {
	if l < 0 || int(l) >= len(lawNames) {
		return "unknown"
	}
	return lawNames[l]
}

// ParseLaw returns law by its name.
func ParseLaw(s string) (Law, error) {
	for i, n := range lawNames {
		if n == s {
			return Law(i), nil
		}
	}
	return DefaultLaw, fmt.Errorf("unknown panner law %q", s)
}

// supports returns true if law can distribute in streams to out streams.
func (l Law) supports(in, out int) bool {
	if in == 0 || out == 0 {
		return false
	}
	if l == Balance {
		return in == 2 && out == 2
	}
	return true
}

// Panner maps every input stream to the outputs. Positions are in [0, 1]
// range, 0 is the first output and 1 is the last. Positions and gains are
// reallocated only when the chain is locked for writing.
type Panner struct {
	console.Base
	ctx     *console.Context
	logger  logrus.FieldLogger
	law     Law
	outputs int

	positions []*control.Control
	// gains are applied per input and output at the end of the last cycle.
	gains   [][]float32
	targets []float32
	// series holds automated positions of a single input for the cycle.
	series []float32
}

// Option configures the panner.
type Option func(*Panner)

// WithLaw sets panning law.
func WithLaw(l Law) Option {
	return func(p *Panner) {
		p.law = l
	}
}

// New returns active panner. Positions are derived on the first Reset.
func New(ctx *console.Context, options ...Option) *Panner {
	p := &Panner{
		Base:   console.NewBase("panner"),
		ctx:    ctx,
		logger: ctx.Logger,
		law:    DefaultLaw,
	}
	for _, option := range options {
		option(p)
	}
	p.SetVisible(false)
	p.Activate()
	return p
}

// Law returns current panning law.
func (p *Panner) Law() Law {
	return p.law
}

// SetLaw changes the law and re-derives positions. It must not be called
// concurrently with Distribute.
func (p *Panner) SetLaw(l Law) {
	p.law = l
	p.Reset(len(p.gains), p.outputs)
}

// Outputs returns number of outputs.
func (p *Panner) Outputs() int {
	return p.outputs
}

// Inputs returns number of panned inputs.
func (p *Panner) Inputs() int {
	return len(p.gains)
}

// Supports returns true if the law can map in streams to out streams.
func (p *Panner) Supports(in, out int) bool {
	return p.law.supports(in, out)
}

// Position returns position control of input i. Balance law has a single
// position for both inputs.
func (p *Panner) Position(i int) *control.Control {
	if i < 0 || i >= len(p.positions) {
		return nil
	}
	return p.positions[i]
}

// Reset re-derives default positions for in inputs and out outputs. A
// single input is centered, multiple inputs are spread from the first to
// the last output.
func (p *Panner) Reset(in, out int) {
	p.outputs = out
	positions := in
	if p.law == Balance {
		positions = 1
	}
	p.positions = make([]*control.Control, positions)
	for i := range p.positions {
		normal := 0.5
		if positions > 1 {
			normal = float64(i) / float64(positions-1)
		}
		p.positions[i] = control.New(
			fmt.Sprintf("pan %d", i+1),
			control.WithRange(0, 1, normal),
			control.WithBus(p.ctx.Bus, p.ID()),
		)
	}
	p.gains = make([][]float32, in)
	for i := range p.gains {
		p.gains[i] = make([]float32, out)
		p.distribution(i, p.gains[i])
	}
	p.targets = make([]float32, out)
	p.series = make([]float32, p.ctx.BufferSize())
}

// Distribute mixes audio streams of src into dst scaled by gain. dst
// must hold Outputs streams. Automated positions are evaluated for every
// frame of the cycle.
func (p *Panner) Distribute(src *signal.BufferSet, dst [][]signal.Sample, c console.Cycle, gain float32) {
	n := c.Frames
	outputs := min(len(dst), p.outputs)
	for i := 0; i < min(src.Count().Audio(), len(p.gains)); i++ {
		data := src.Audio(i).Data(n)
		pos := p.position(i)
		if n <= len(p.series) && pos.Series(c.Start, p.series[:n]) {
			for f := 0; f < min(n, len(data)); f++ {
				p.distributionAt(i, float64(p.series[f]), p.targets)
				for o := 0; o < outputs; o++ {
					dst[o][f] += data[f] * p.targets[o] * gain
				}
			}
			for o := 0; o < outputs; o++ {
				p.gains[i][o] = p.targets[o] * gain
			}
			continue
		}
		p.distribution(i, p.targets)
		for o := 0; o < outputs; o++ {
			target := p.targets[o] * gain
			signal.MixWithRamp(dst[o], data, p.gains[i][o], target)
			p.gains[i][o] = target
		}
	}
}

// position returns control of input i.
func (p *Panner) position(i int) *control.Control {
	if p.law == Balance {
		return p.positions[0]
	}
	return p.positions[i]
}

// distribution computes gains of input i for every output.
func (p *Panner) distribution(i int, dst []float32) {
	p.distributionAt(i, p.position(i).Value(), dst)
}

// distributionAt computes gains of input i at position pos.
func (p *Panner) distributionAt(i int, pos float64, dst []float32) {
	clear(dst)
	if len(dst) == 0 {
		return
	}
	if len(dst) == 1 {
		dst[0] = 1
		return
	}
	switch p.law {
	case Balance:
		if i == 0 {
			dst[0] = float32(min(1, 2*(1-pos)))
		} else if i == 1 {
			dst[1] = float32(min(1, 2*pos))
		}
	case Linear, EqualPower:
		x := pos * float64(len(dst)-1)
		k := min(int(x), len(dst)-2)
		f := x - float64(k)
		left, right := 1-f, f
		if p.law == EqualPower {
			left, right = equalPower(f)
		}
		dst[k], dst[k+1] = float32(left), float32(right)
	}
}

func equalPower(f float64) (float64, float64) {
	switch f {
	case 0:
		return 1, 0
	case 1:
		return 0, 1
	}
	return math.Cos(f * math.Pi / 2), math.Sin(f * math.Pi / 2)
}

// State returns the law and positions.
func (p *Panner) State() *console.State {
	s := p.Base.State()
	s.Name = "panner"
	s.Set("law", p.law.String())
	for i, pos := range p.positions {
		s.Set(fmt.Sprintf("position-%d", i), pos.Value())
	}
	return s
}

// SetState restores law and positions. Unknown law falls back to the
// default one.
func (p *Panner) SetState(s *console.State) error {
	if err := p.Base.SetState(s); err != nil {
		return err
	}
	law, err := ParseLaw(s.String("law", DefaultLaw.String()))
	if err != nil {
		p.logger.WithField("processor", p.ID()).Warnf("restore panner: %v, using %v", err, DefaultLaw)
	}
	if law != p.law {
		p.SetLaw(law)
	}
	for i, pos := range p.positions {
		pos.Set(s.Float(fmt.Sprintf("position-%d", i), pos.Normal()))
	}
	return nil
}
