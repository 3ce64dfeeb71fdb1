// Package route provides the mixer channel strip: an ordered chain of
// processors bound to input and output ports.
package route

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dudk/console"
	"github.com/dudk/console/amp"
	"github.com/dudk/console/delivery"
	"github.com/dudk/console/event"
	"github.com/dudk/console/meter"
	"github.com/dudk/console/metric"
	"github.com/dudk/console/panner"
	"github.com/dudk/console/port"
	"github.com/dudk/console/signal"
)

// ErrGoingAway is returned when destroyed route is edited.
var ErrGoingAway = errors.New("route is going away")

// Source fills route buffers before the chain runs. It's called on the
// real-time goroutine with the chain locked for reading.
type Source interface {
	Fill(bufs *signal.BufferSet, c console.Cycle)
}

// Route is a mixer channel strip. The chain always contains an amp, a
// peak meter and a main delivery. The real-time goroutine processes the
// chain only if it can take the read lock without waiting.
type Route struct {
	id     string
	name   string
	ctx    *console.Context
	logger logrus.FieldLogger

	mu    sync.RWMutex
	chain []console.Processor
	bufs  *signal.BufferSet
	input signal.ChannelCount

	ret   *delivery.InternalReturn
	trim  *amp.Amp
	amp   *amp.Amp
	meter *meter.PeakMeter
	align *delay
	main  *delivery.Delivery

	inputs     []*port.Port
	midiInputs []*port.Port
	source     Source
	measure    *metric.Measure

	meterPoint atomic.Int32
	latency    atomic.Int64
	active     atomic.Bool
	goingAway  atomic.Bool
	monitoring atomic.Bool
	denormal   atomic.Bool
	invert     atomic.Uint64

	selfSoloed     atomic.Bool
	soloUpstream   atomic.Int32
	soloDownstream atomic.Int32
	soloIsolated   atomic.Bool
	soloSafe       atomic.Bool
	muted          atomic.Bool
	mutePoints     atomic.Uint32

	group atomic.Pointer[Group]

	// options
	outputs signal.ChannelCount
	law     panner.Law
}

// Option configures route.
type Option func(*Route) error

// WithInputs sets number of input ports.
func WithInputs(c signal.ChannelCount) Option {
	return func(r *Route) error {
		r.input = c
		return nil
	}
}

// WithOutputs sets number of output ports of the main delivery.
func WithOutputs(c signal.ChannelCount) Option {
	return func(r *Route) error {
		r.outputs = c
		return nil
	}
}

// WithPanner sets the panning law of the main delivery.
func WithPanner(l panner.Law) Option {
	return func(r *Route) error {
		r.law = l
		return nil
	}
}

// WithLogger sets route logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Route) error {
		r.logger = l
		return nil
	}
}

// WithID sets route identity. It's used to restore persisted routes.
func WithID(id string) Option {
	return func(r *Route) error {
		if id == "" {
			return fmt.Errorf("empty route id")
		}
		r.id = id
		return nil
	}
}

// New creates a route with default chain, registers its ports and
// negotiates the chain.
func New(ctx *console.Context, name string, options ...Option) (*Route, error) {
	r := &Route{
		id:      console.NewUID(),
		name:    name,
		ctx:     ctx,
		logger:  ctx.Logger,
		input:   signal.AudioChannels(2),
		outputs: signal.AudioChannels(2),
		law:     panner.DefaultLaw,
		bufs:    signal.NewBufferSet(signal.ChannelCount{}, ctx.BufferSize()),
	}
	for _, option := range options {
		if err := option(r); err != nil {
			return nil, fmt.Errorf("route %s: %w", name, err)
		}
	}
	r.logger = r.logger.WithField("route", name)
	r.measure = metric.Meter(r, ctx.SampleRate())
	r.source = inputSource{r}
	r.active.Store(true)
	r.monitoring.Store(true)
	r.mutePoints.Store(uint32(delivery.MuteAll))
	r.meterPoint.Store(int32(meter.PostFader))

	r.ret = delivery.NewReturn(ctx)
	r.trim = amp.New(ctx, amp.WithName("trim"), amp.Hidden(), amp.WithControl(newTrimControl(ctx, r.id)))
	r.amp = amp.New(ctx)
	r.meter = meter.New(ctx)
	r.align = newDelay()
	r.main = delivery.New(ctx, r, delivery.RoleMain,
		delivery.WithPorts(r.outputs),
		delivery.WithPanner(r.law),
		delivery.WithPortPrefix(name),
	)
	if err := r.registerInputs(r.input); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.apply(r.input, []console.Processor{r.ret, r.trim, r.amp, r.meter, r.align, r.main})
	if err != nil {
		return nil, errors.Join(err, r.unregisterInputs())
	}
	return r, nil
}

// ID returns unique identifier of the route.
func (r *Route) ID() string {
	return r.id
}

// Name returns route name.
func (r *Route) Name() string {
	return r.name
}

// Context returns context of the route.
func (r *Route) Context() *console.Context {
	return r.ctx
}

// Amp returns the fader of the route.
func (r *Route) Amp() *amp.Amp {
	return r.amp
}

// Trim returns the input trim of the route.
func (r *Route) Trim() *amp.Amp {
	return r.trim
}

// Meter returns the peak meter of the route.
func (r *Route) Meter() *meter.PeakMeter {
	return r.meter
}

// Main returns main delivery of the route.
func (r *Route) Main() *delivery.Delivery {
	return r.main
}

// Return returns the internal return of the route.
func (r *Route) Return() *delivery.InternalReturn {
	return r.ret
}

// InputPorts returns audio input ports.
func (r *Route) InputPorts() []*port.Port {
	return r.inputs
}

// MIDIInputPorts returns MIDI input ports.
func (r *Route) MIDIInputPorts() []*port.Port {
	return r.midiInputs
}

// OutputPorts returns audio ports of the main delivery.
func (r *Route) OutputPorts() []*port.Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*port.Port(nil), r.main.Ports()...)
}

// Input returns configured input count.
func (r *Route) Input() signal.ChannelCount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.input
}

// Output returns output count of the chain.
func (r *Route) Output() signal.ChannelCount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.main.Output()
}

// SetSource replaces the signal source of the chain. It must be called
// before the route is processed.
func (r *Route) SetSource(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = s
}

// Exclusive runs fn while the chain is locked for writing. Sources use it
// to swap state read on the real-time thread.
func (r *Route) Exclusive(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// Active returns true if route is processed.
func (r *Route) Active() bool {
	return r.active.Load()
}

// SetActive enables or disables processing of the route.
func (r *Route) SetActive(v bool) {
	r.active.Store(v)
}

// Monitoring returns false if route output must be silent because
// nothing is monitored.
func (r *Route) Monitoring() bool {
	return r.monitoring.Load()
}

// SetMonitoring is used by tracks to silence outputs.
func (r *Route) SetMonitoring(v bool) {
	r.monitoring.Store(v)
}

// SetDenormalProtection enables denormal protection of the input.
func (r *Route) SetDenormalProtection(v bool) {
	r.denormal.Store(v)
}

// SetPhaseInvert inverts polarity of input channels set in mask.
func (r *Route) SetPhaseInvert(mask uint64) {
	r.invert.Store(mask)
}

// PhaseInvert returns polarity inversion mask.
func (r *Route) PhaseInvert() uint64 {
	return r.invert.Load()
}

// GoingAway returns true if route is being destroyed.
func (r *Route) GoingAway() bool {
	return r.goingAway.Load()
}

// Process runs the chain for a cycle. It returns false if the chain is
// being edited, then the cycle is skipped and outputs stay silent.
func (r *Route) Process(c console.Cycle) bool {
	if !r.mu.TryRLock() {
		r.measure.Skip()
		return false
	}
	defer r.mu.RUnlock()
	if !r.active.Load() || r.chain == nil {
		return true
	}
	r.source.Fill(r.bufs, c)
	r.processOutputBuffers(r.bufs, c)
	return true
}

// processOutputBuffers conditions input and runs every processor over the
// same buffers, changing the active count between stages.
func (r *Route) processOutputBuffers(bufs *signal.BufferSet, c console.Cycle) {
	n := c.Frames
	mask := r.invert.Load()
	denormal := r.denormal.Load()
	for i := 0; i < bufs.Count().Audio(); i++ {
		data := bufs.Audio(i).Data(n)
		if i < 64 && mask&(1<<uint(i)) != 0 {
			signal.Invert(data)
		}
		if denormal {
			signal.Denormalize(data)
		}
	}
	for _, p := range r.chain {
		in, out := p.Input(), p.Output()
		bufs.SetCount(in)
		if p.Active() {
			p.Run(bufs, c)
		} else {
			for i := in.Audio(); i < out.Audio(); i++ {
				bufs.Audio(i).Silence(n, 0)
			}
			for i := in.MIDI(); i < out.MIDI(); i++ {
				bufs.MIDI(i).Silence()
			}
		}
		bufs.SetCount(out)
	}
}

// ReadInputs copies signal of input ports into buffers.
func (r *Route) ReadInputs(bufs *signal.BufferSet, c console.Cycle) {
	n := c.Frames
	bufs.SetCount(r.input)
	for i, p := range r.inputs {
		bufs.Audio(i).ReadFrom(p.Audio(n), n)
	}
	for i, p := range r.midiInputs {
		bufs.MIDI(i).ReadFrom(p.MIDI())
	}
}

type inputSource struct {
	r *Route
}

func (s inputSource) Fill(bufs *signal.BufferSet, c console.Cycle) {
	s.r.ReadInputs(bufs, c)
}

func (r *Route) registerInputs(c signal.ChannelCount) error {
	var err error
	if r.inputs, err = r.ensureInputs(r.inputs, signal.Audio, c.Audio()); err != nil {
		return err
	}
	r.midiInputs, err = r.ensureInputs(r.midiInputs, signal.MIDI, c.MIDI())
	return err
}

func (r *Route) ensureInputs(ports []*port.Port, typ signal.DataType, n int) ([]*port.Port, error) {
	for len(ports) > n {
		if err := r.ctx.Ports.Unregister(ports[len(ports)-1]); err != nil {
			return ports, err
		}
		ports = ports[:len(ports)-1]
	}
	for len(ports) < n {
		p, err := r.ctx.Ports.Register(fmt.Sprintf("%s/%s_in %d", r.name, typ, len(ports)+1), typ, port.Input, 0)
		if err != nil {
			return ports, fmt.Errorf("route %s: %w", r.name, err)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func (r *Route) unregisterInputs() error {
	var errs console.Errors
	for _, p := range r.inputs {
		errs = errs.Add(r.ctx.Ports.Unregister(p))
	}
	for _, p := range r.midiInputs {
		errs = errs.Add(r.ctx.Ports.Unregister(p))
	}
	r.inputs, r.midiInputs = nil, nil
	return errs.Ret()
}

// SetInputs changes number of input ports and renegotiates the chain. If
// the chain can't accept new input, ports are restored.
func (r *Route) SetInputs(c signal.ChannelCount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.goingAway.Load() {
		return ErrGoingAway
	}
	prev := r.input
	if prev == c {
		return nil
	}
	if err := r.registerInputs(c); err != nil {
		return errors.Join(err, r.registerInputs(prev))
	}
	if err := r.apply(c, r.chain); err != nil {
		return errors.Join(err, r.registerInputs(prev))
	}
	r.input = c
	r.notify(event.ProcessorsChanged)
	return nil
}

// SetOutputs changes requested number of output ports and renegotiates
// the chain.
func (r *Route) SetOutputs(c signal.ChannelCount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.goingAway.Load() {
		return ErrGoingAway
	}
	prev := r.main.Requested()
	r.main.RequestPorts(c)
	if err := r.apply(r.input, r.chain); err != nil {
		r.main.RequestPorts(prev)
		return err
	}
	r.outputs = c
	r.notify(event.ProcessorsChanged)
	return nil
}

// Renegotiate configures the chain again, for example after buffer size
// change.
func (r *Route) Renegotiate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.goingAway.Load() {
		return ErrGoingAway
	}
	return r.apply(r.input, r.chain)
}

// Declick schedules transport declick of the fader.
func (r *Route) Declick(direction int) {
	r.amp.Declick(direction)
}

// Reset clears signal state of processors after transport locate.
func (r *Route) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.chain {
		if rs, ok := p.(console.Resetter); ok {
			rs.Reset()
		}
	}
}

// Destroy tears the route down: attached sends become inert, processors
// are deactivated, their ports are released and the chain is dropped.
func (r *Route) Destroy() error {
	if !r.goingAway.CompareAndSwap(false, true) {
		return nil
	}
	r.notify(event.RouteGoingAway)
	r.ret.Drop()
	if r.selfSoloed.Swap(false) {
		r.ctx.AdjustSoloed(-1)
	}
	if g := r.group.Load(); g != nil {
		g.Remove(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.chain {
		deactivateNow(p)
	}
	var errs console.Errors
	for _, p := range r.chain {
		if rel, ok := p.(console.Releaser); ok {
			errs = errs.Add(rel.Release())
		}
	}
	errs = errs.Add(r.unregisterInputs())
	r.chain = nil
	r.active.Store(false)
	return errs.Ret()
}

func deactivateNow(p console.Processor) {
	if d, ok := p.(interface{ DeactivateNow() }); ok {
		d.DeactivateNow()
		return
	}
	p.Deactivate()
}

func (r *Route) notify(k event.Kind) {
	r.ctx.Bus.Emit(event.Message{Kind: k, Source: r.id})
}

func (r *Route) String() string {
	return r.name
}
