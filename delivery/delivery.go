// Package delivery provides processors that write signal to a
// destination: output ports, auxiliary ports or another route.
package delivery

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dudk/console"
	"github.com/dudk/console/panner"
	"github.com/dudk/console/port"
	"github.com/dudk/console/signal"
)

// Role decides if delivery owns ports and which mute point applies.
type Role int

// Roles of delivery.
const (
	RoleMain Role = iota
	RoleSend
	RoleInsert
	RoleListen
	RoleAux
)

var roleNames = [...]string{"main", "send", "insert", "listen", "aux"}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return "unknown"
	}
	return roleNames[r]
}

// ParseRole returns role by its name.
func ParseRole(s string) (Role, bool) {
	for i, n := range roleNames {
		if n == s {
			return Role(i), true
		}
	}
	return RoleMain, false
}

// ownsPorts returns true if role writes to real ports.
func (r Role) ownsPorts() bool {
	return r != RoleAux
}

// obeysSolo returns true if the role is muted by other routes solo.
func (r Role) obeysSolo() bool {
	return r == RoleMain || r == RoleListen
}

// MutePoint is a set of chain positions muted by the owner.
type MutePoint uint32

// Mute points.
const (
	MutePreFader MutePoint = 1 << iota
	MutePostFader
	MuteListen
	MuteMain

	MuteAll = MutePreFader | MutePostFader | MuteListen | MuteMain
)

// Placement is the position of delivery relative to the fader.
type Placement int32

// Placements.
const (
	PostFader Placement = iota
	PreFader
)

func (p Placement) String() string {
	if p == PreFader {
		return "pre"
	}
	return "post"
}

// Owner provides mute and solo state of the route that owns delivery.
// Methods are called on the real-time goroutine and must not block.
type Owner interface {
	ID() string
	Name() string
	MutedAt(MutePoint) bool
	SoloIsolated() bool
	Soloed() bool
	Monitoring() bool
}

// Delivery writes its input to the destination applying solo and mute
// gain. Gain changes are ramped across the cycle.
type Delivery struct {
	console.Base
	ctx    *console.Context
	logger logrus.FieldLogger
	owner  Owner
	role   Role
	panner *panner.Panner

	placement atomic.Int32
	pending   atomic.Bool

	audioPorts []*port.Port
	midiPorts  []*port.Port
	requested  signal.ChannelCount
	prefix     string

	// applied is the gain applied in the last cycle, owned by the
	// real-time goroutine.
	applied float32
	dst     [][]signal.Sample
}

// Option configures delivery.
type Option func(*Delivery)

// WithPorts sets the requested number of owned ports.
func WithPorts(c signal.ChannelCount) Option {
	return func(d *Delivery) {
		d.requested = c
	}
}

// WithPanner sets the panning law of delivery.
func WithPanner(l panner.Law) Option {
	return func(d *Delivery) {
		d.panner = panner.New(d.ctx, panner.WithLaw(l))
	}
}

// WithPortPrefix sets prefix of owned port names.
func WithPortPrefix(prefix string) Option {
	return func(d *Delivery) {
		d.prefix = prefix
	}
}

// WithName sets the name of delivery.
func WithName(name string) Option {
	return func(d *Delivery) {
		d.SetName(name)
	}
}

// New creates delivery of provided role. Owner can be nil, then delivery
// is never muted.
func New(ctx *console.Context, owner Owner, role Role, options ...Option) *Delivery {
	d := &Delivery{
		Base:    console.NewBase(role.String()),
		ctx:     ctx,
		logger:  ctx.Logger,
		owner:   owner,
		role:    role,
		applied: signal.GainUnity,
	}
	for _, option := range options {
		option(d)
	}
	if d.panner == nil {
		d.panner = panner.New(ctx)
	}
	if d.prefix == "" {
		d.prefix = d.Name()
		if owner != nil {
			d.prefix = owner.Name() + "/" + d.Name()
		}
	}
	if role == RoleMain {
		d.SetVisible(false)
	}
	d.Activate()
	return d
}

// Role returns delivery role.
func (d *Delivery) Role() Role {
	return d.role
}

// Panner returns the panner of delivery.
func (d *Delivery) Panner() *panner.Panner {
	return d.panner
}

// Placement returns position relative to the fader.
func (d *Delivery) Placement() Placement {
	return Placement(d.placement.Load())
}

// SetPlacement is called by the owner when chain is reordered.
func (d *Delivery) SetPlacement(p Placement) {
	d.placement.Store(int32(p))
}

// Ports returns owned audio ports.
func (d *Delivery) Ports() []*port.Port {
	return d.audioPorts
}

// MIDIPorts returns owned MIDI ports.
func (d *Delivery) MIDIPorts() []*port.Port {
	return d.midiPorts
}

// RequestPorts sets the number of ports for the next negotiation.
func (d *Delivery) RequestPorts(c signal.ChannelCount) {
	d.requested = c
}

// Requested returns requested number of ports.
func (d *Delivery) Requested() signal.ChannelCount {
	return d.requested
}

// PortCount returns number of owned ports.
func (d *Delivery) PortCount() signal.ChannelCount {
	return signal.Channels(len(d.audioPorts), len(d.midiPorts))
}

// Activate cancels pending deactivation.
func (d *Delivery) Activate() {
	d.pending.Store(false)
	d.Base.Activate()
}

// Deactivate fades delivery out during the next cycle and deactivates
// it when the gain reaches zero.
func (d *Delivery) Deactivate() {
	if !d.Active() {
		return
	}
	d.pending.Store(true)
}

// DeactivateNow deactivates delivery without fade.
func (d *Delivery) DeactivateNow() {
	d.pending.Store(false)
	d.Base.Deactivate()
}

// Pending returns true if deactivation is pending.
func (d *Delivery) Pending() bool {
	return d.pending.Load()
}

// CanSupportIO returns the number of owned ports for main delivery if
// signal can be mapped to them. Otherwise the input is returned and
// owner must reconcile ports. Other roles don't change the chain signal.
func (d *Delivery) CanSupportIO(in signal.ChannelCount) (signal.ChannelCount, bool) {
	if d.role != RoleMain {
		return in, true
	}
	ports := len(d.audioPorts)
	if d.requested.Audio() > 0 {
		ports = d.requested.Audio()
	}
	if ports == 0 || ports == in.Audio() || !d.panner.Supports(in.Audio(), ports) {
		return in, true
	}
	return in.With(signal.Audio, ports), true
}

// ConfigureIO configures panner for current ports.
func (d *Delivery) ConfigureIO(in, out signal.ChannelCount) error {
	if err := d.Base.ConfigureIO(in, out); err != nil {
		return err
	}
	if d.role.ownsPorts() && d.role != RoleMain {
		ports := d.requested
		if ports.IsZero() {
			ports = in
		}
		if err := d.EnsurePorts(ports); err != nil {
			return err
		}
	}
	d.configurePanner(in.Audio(), len(d.audioPorts))
	return nil
}

// configurePanner resets panner if it maps in streams to out and returns
// true if it was reset. Matching counts are passed through unless the law
// is balance.
func (d *Delivery) configurePanner(in, out int) bool {
	if !d.panner.Supports(in, out) || (in == out && d.panner.Law() != panner.Balance) {
		return false
	}
	if d.panner.Inputs() == in && d.panner.Outputs() == out {
		return false
	}
	d.panner.Reset(in, out)
	return true
}

// EnsurePorts registers or unregisters ports to match count. It's
// called on non-real-time goroutine while the chain is locked.
func (d *Delivery) EnsurePorts(count signal.ChannelCount) error {
	var err error
	if d.audioPorts, err = d.ensure(d.audioPorts, signal.Audio, count.Audio()); err != nil {
		return err
	}
	if d.midiPorts, err = d.ensure(d.midiPorts, signal.MIDI, count.MIDI()); err != nil {
		return err
	}
	if cap(d.dst) < len(d.audioPorts) {
		d.dst = make([][]signal.Sample, 0, len(d.audioPorts))
	}
	d.configurePanner(d.Input().Audio(), len(d.audioPorts))
	return nil
}

func (d *Delivery) ensure(ports []*port.Port, typ signal.DataType, n int) ([]*port.Port, error) {
	for len(ports) > n {
		last := ports[len(ports)-1]
		if err := d.ctx.Ports.Unregister(last); err != nil {
			return ports, err
		}
		ports = ports[:len(ports)-1]
	}
	for len(ports) < n {
		name := fmt.Sprintf("%s/%s_out %d", d.prefix, typ, len(ports)+1)
		p, err := d.ctx.Ports.Register(name, typ, port.Output, 0)
		if err != nil {
			return ports, fmt.Errorf("delivery %s: %w", d.Name(), err)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// Release unregisters all owned ports.
func (d *Delivery) Release() error {
	var errs console.Errors
	for _, p := range d.audioPorts {
		errs = errs.Add(d.ctx.Ports.Unregister(p))
	}
	for _, p := range d.midiPorts {
		errs = errs.Add(d.ctx.Ports.Unregister(p))
	}
	d.audioPorts, d.midiPorts = nil, nil
	return errs.Ret()
}

// TargetGain computes gain from activation, monitoring, solo and mute
// state.
func (d *Delivery) TargetGain() float32 {
	if d.pending.Load() {
		return signal.GainZero
	}
	if d.owner == nil {
		return signal.GainUnity
	}
	if !d.owner.Monitoring() {
		return signal.GainZero
	}
	gain := signal.GainUnity
	if d.owner.MutedAt(d.mutePoint()) {
		gain = signal.GainZero
	}
	if d.role.obeysSolo() && d.ctx.Soloing() && !d.owner.SoloIsolated() && !d.owner.Soloed() {
		gain = min(gain, d.ctx.SoloMuteGain())
	}
	return gain
}

func (d *Delivery) mutePoint() MutePoint {
	switch d.role {
	case RoleMain:
		return MuteMain
	case RoleListen:
		return MuteListen
	}
	if d.Placement() == PreFader {
		return MutePreFader
	}
	return MutePostFader
}

// Run writes the signal to owned ports. Buffers are modified in place,
// main delivery is the last stage of the chain.
func (d *Delivery) Run(bufs *signal.BufferSet, c console.Cycle) {
	d.deliver(bufs, c)
}

// deliver applies gain to src and writes it to the ports.
func (d *Delivery) deliver(src *signal.BufferSet, c console.Cycle) {
	n := c.Frames
	target := d.TargetGain()
	if target == signal.GainZero && d.applied == signal.GainZero {
		d.silence(n)
		d.finishDeactivation()
		return
	}
	d.applyGain(src, n, target)
	d.dst = d.dst[:0]
	for _, p := range d.audioPorts {
		data := p.Audio(n)
		clear(data)
		d.dst = append(d.dst, data)
	}
	d.output(src, d.dst, c)
	for i, p := range d.midiPorts {
		if i < src.Count().MIDI() {
			p.MIDIBuffer().ReadFrom(src.MIDI(i))
		} else {
			p.MIDIBuffer().Silence()
		}
	}
	d.finishDeactivation()
}

func (d *Delivery) applyGain(src *signal.BufferSet, n int, target float32) {
	for i := 0; i < src.Count().Audio(); i++ {
		data := src.Audio(i).Data(n)
		if target != d.applied {
			signal.ApplyRamp(data, d.applied, target)
		} else {
			signal.ApplyGain(data, target)
		}
	}
	d.applied = target
}

// output mixes src into dst through panner if it's configured for
// these counts.
func (d *Delivery) output(src *signal.BufferSet, dst [][]signal.Sample, c console.Cycle) {
	n := c.Frames
	in := src.Count().Audio()
	if d.panner.Inputs() == in && d.panner.Outputs() == len(dst) {
		d.panner.Distribute(src, dst, c, signal.GainUnity)
		return
	}
	for i := 0; i < min(in, len(dst)); i++ {
		signal.Mix(dst[i], src.Audio(i).Data(n))
	}
}

func (d *Delivery) silence(n int) {
	for _, p := range d.audioPorts {
		clear(p.Audio(n))
	}
	for _, p := range d.midiPorts {
		p.MIDIBuffer().Silence()
	}
}

func (d *Delivery) finishDeactivation() {
	if d.applied == signal.GainZero && d.pending.CompareAndSwap(true, false) {
		d.Base.Deactivate()
	}
}

// State returns role, placement and panner state.
func (d *Delivery) State() *console.State {
	s := d.Base.State()
	s.Name = "delivery"
	s.Set("role", d.role.String()).
		Set("placement", d.Placement().String())
	return s.Add(d.panner.State())
}

// SetState restores delivery. Role is immutable and is not restored.
func (d *Delivery) SetState(s *console.State) error {
	if err := d.Base.SetState(s); err != nil {
		return err
	}
	if s.String("placement", "post") == "pre" {
		d.SetPlacement(PreFader)
	} else {
		d.SetPlacement(PostFader)
	}
	if ps := s.Child("panner"); ps != nil {
		if err := d.panner.SetState(ps); err != nil {
			d.logger.WithField("processor", d.ID()).Warnf("restore panner: %v", err)
		}
		// restored law might need a layout the panner had no positions for
		if d.configurePanner(d.Input().Audio(), len(d.audioPorts)) {
			return d.panner.SetState(ps)
		}
	}
	return nil
}
