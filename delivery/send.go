package delivery

import (
	"sync/atomic"

	"github.com/dudk/console"
	"github.com/dudk/console/amp"
	"github.com/dudk/console/meter"
	"github.com/dudk/console/signal"
)

// Send duplicates the signal to its own ports. The copy is processed by
// a private amp and meter, the buffers of the chain are never modified.
type Send struct {
	*Delivery
	amp      *amp.Amp
	meter    *meter.PeakMeter
	metering atomic.Bool
}

// NewSend creates send that owns ports.
func NewSend(ctx *console.Context, owner Owner, options ...Option) *Send {
	return newSend(New(ctx, owner, RoleSend, options...))
}

func newSend(d *Delivery) *Send {
	s := &Send{
		Delivery: d,
		amp:      amp.New(d.ctx, amp.WithName(d.Name()+" amp")),
		meter:    meter.New(d.ctx, meter.WithName(d.Name()+" meter")),
	}
	s.metering.Store(true)
	return s
}

// Amp returns the private amp of the send.
func (s *Send) Amp() *amp.Amp {
	return s.amp
}

// Meter returns the private meter of the send.
func (s *Send) Meter() *meter.PeakMeter {
	return s.meter
}

// SetMetering enables metering of the send.
func (s *Send) SetMetering(v bool) {
	s.metering.Store(v)
}

// CanSupportIO accepts any input and doesn't change it.
func (s *Send) CanSupportIO(in signal.ChannelCount) (signal.ChannelCount, bool) {
	return in, true
}

// ConfigureIO configures private stages and scratch buffers.
func (s *Send) ConfigureIO(in, out signal.ChannelCount) error {
	if err := s.Delivery.ConfigureIO(in, out); err != nil {
		return err
	}
	s.ctx.EnsureScratch(in)
	if err := s.amp.ConfigureIO(in, in); err != nil {
		return err
	}
	return s.meter.ConfigureIO(in, in)
}

// Run copies the signal into scratch buffers and delivers it.
func (s *Send) Run(bufs *signal.BufferSet, c console.Cycle) {
	scratch := s.process(bufs, c)
	s.deliver(scratch, c)
}

func (s *Send) process(bufs *signal.BufferSet, c console.Cycle) *signal.BufferSet {
	scratch := s.ctx.Scratch(bufs.Count())
	scratch.ReadFrom(bufs, c.Frames)
	s.amp.Run(scratch, c)
	if s.metering.Load() {
		s.meter.Run(scratch, c)
	}
	return scratch
}

// State returns send state with private amp.
func (s *Send) State() *console.State {
	st := s.Delivery.State()
	st.Name = "send"
	return st.Add(s.amp.State())
}

// SetState restores send and its amp.
func (s *Send) SetState(st *console.State) error {
	if err := s.Delivery.SetState(st); err != nil {
		return err
	}
	if as := st.Child("amp"); as != nil {
		return s.amp.SetState(as)
	}
	return nil
}

// InternalSend duplicates the signal into the return of another route.
// The target is a weak reference: it's resolved when the graph is
// complete and cleared when the target goes away. Send without target is
// inert.
type InternalSend struct {
	*Send
	targetID string
	target   atomic.Pointer[InternalReturn]
}

// NewInternalSend creates send to the route with targetID.
func NewInternalSend(ctx *console.Context, owner Owner, targetID string, options ...Option) *InternalSend {
	return &InternalSend{
		Send:     newSend(New(ctx, owner, RoleAux, options...)),
		targetID: targetID,
	}
}

// TargetID returns ID of the target route.
func (s *InternalSend) TargetID() string {
	return s.targetID
}

// Target returns resolved return or nil.
func (s *InternalSend) Target() *InternalReturn {
	return s.target.Load()
}

// Inert returns true if send has no target.
func (s *InternalSend) Inert() bool {
	return s.target.Load() == nil
}

// Resolve looks up the target. It's called when all routes of the graph
// are constructed. If the target is missing, send becomes inert.
func (s *InternalSend) Resolve(lookup func(id string) (*InternalReturn, bool)) bool {
	r, ok := lookup(s.targetID)
	if !ok || r == nil || r.GoingAway() {
		s.detach()
		s.logger.WithField("processor", s.ID()).Warnf("send target %s not found", s.targetID)
		return false
	}
	if current := s.target.Load(); current == r {
		return true
	}
	s.detach()
	r.attach(s)
	s.target.Store(r)
	s.configureTarget(s.Input().Audio(), r)
	return true
}

// targetGoingAway is called by the return before it's destroyed.
func (s *InternalSend) targetGoingAway() {
	s.target.Store(nil)
}

func (s *InternalSend) detach() {
	if r := s.target.Swap(nil); r != nil {
		r.detach(s)
	}
}

// ConfigureIO configures private stages and panner for target layout.
func (s *InternalSend) ConfigureIO(in, out signal.ChannelCount) error {
	if err := s.Send.ConfigureIO(in, out); err != nil {
		return err
	}
	if r := s.target.Load(); r != nil {
		s.configureTarget(in.Audio(), r)
	}
	return nil
}

func (s *InternalSend) configureTarget(in int, r *InternalReturn) {
	out := r.Channels().Audio()
	if cap(s.dst) < out {
		s.dst = make([][]signal.Sample, 0, out)
	}
	s.configurePanner(in, out)
}

// Run mixes processed copy of the signal into the target return.
func (s *InternalSend) Run(bufs *signal.BufferSet, c console.Cycle) {
	r := s.target.Load()
	if r == nil {
		return
	}
	n := c.Frames
	target := s.TargetGain()
	if target == signal.GainZero && s.applied == signal.GainZero {
		s.finishDeactivation()
		return
	}
	scratch := s.process(bufs, c)
	s.applyGain(scratch, n, target)
	acc := r.prepare(n, c.Index)
	s.dst = acc.AudioData(n, s.dst)
	s.output(scratch, s.dst, c)
	for i := 0; i < min(scratch.Count().MIDI(), acc.Count().MIDI()); i++ {
		acc.MIDI(i).Merge(scratch.MIDI(i))
	}
	s.finishDeactivation()
}

// Release detaches send from the target.
func (s *InternalSend) Release() error {
	s.detach()
	return nil
}

// State returns send state with target reference.
func (s *InternalSend) State() *console.State {
	st := s.Send.State()
	st.Name = "internal-send"
	return st.Set("target", s.targetID)
}

// SetState restores send. Target is resolved separately.
func (s *InternalSend) SetState(st *console.State) error {
	if err := s.Send.SetState(st); err != nil {
		return err
	}
	s.targetID = st.String("target", s.targetID)
	return nil
}
