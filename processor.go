package console

import (
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/dudk/console/signal"
)

// Cycle describes the block of frames processed by a single cycle.
type Cycle struct {
	// Start and End are transport positions in frames.
	Start, End int64
	Frames     int
	Speed      float64
	// Index is a monotonic cycle counter.
	Index uint64
}

// Rolling returns true if transport moves during the cycle.
func (c Cycle) Rolling() bool {
	return c.Speed != 0
}

// Processor is a unit of the route chain. Negotiation methods are called
// from non-real-time goroutines while the chain is locked for writing.
// Run is called on the real-time goroutine with buffers holding at least
// max(Input, Output) streams, the active count equals Input.
type Processor interface {
	ID() string
	Name() string
	// CanSupportIO reports if processor accepts in and what output it
	// would produce.
	CanSupportIO(in signal.ChannelCount) (signal.ChannelCount, bool)
	// ConfigureIO commits negotiated configuration.
	ConfigureIO(in, out signal.ChannelCount) error
	Input() signal.ChannelCount
	Output() signal.ChannelCount
	Run(bufs *signal.BufferSet, c Cycle)
	Activate()
	Deactivate()
	Active() bool
	// Visible processors are shown to the user and can be reordered.
	Visible() bool
	State() *State
	SetState(*State) error
}

// Latent is implemented by processors that delay the signal.
type Latent interface {
	Latency() int
}

// Releaser is implemented by processors that hold port bindings. Release
// is called after deactivation, before processor is dropped.
type Releaser interface {
	Release() error
}

// Resetter is implemented by processors with internal signal state, like
// delay lines. Reset is called when transport locates.
type Resetter interface {
	Reset()
}

// Base implements identity and configuration part of Processor.
type Base struct {
	id      string
	name    string
	visible bool
	active  atomic.Bool
	in, out signal.ChannelCount
}

// NewBase returns visible inactive base with a new unique ID.
func NewBase(name string) Base {
	return Base{
		id:      newUID(),
		name:    name,
		visible: true,
	}
}

// ID returns unique identifier of the processor.
func (b *Base) ID() string {
	return b.id
}

// Name returns name of the processor.
func (b *Base) Name() string {
	return b.name
}

// SetName changes the processor name.
func (b *Base) SetName(name string) {
	b.name = name
}

// Visible returns visibility flag.
func (b *Base) Visible() bool {
	return b.visible
}

// SetVisible changes visibility flag.
func (b *Base) SetVisible(v bool) {
	b.visible = v
}

// Active returns true if processor is active.
func (b *Base) Active() bool {
	return b.active.Load()
}

// Activate processor.
func (b *Base) Activate() {
	b.active.Store(true)
}

// Deactivate processor.
func (b *Base) Deactivate() {
	b.active.Store(false)
}

// Input returns configured input.
func (b *Base) Input() signal.ChannelCount {
	return b.in
}

// Output returns configured output.
func (b *Base) Output() signal.ChannelCount {
	return b.out
}

// ConfigureIO stores negotiated configuration.
func (b *Base) ConfigureIO(in, out signal.ChannelCount) error {
	b.in, b.out = in, out
	return nil
}

// State returns properties of the base.
func (b *Base) State() *State {
	return NewState("processor").
		Set("id", b.id).
		Set("name", b.name).
		Set("active", b.Active())
}

// SetState restores properties of the base. Missing properties keep
// current values.
func (b *Base) SetState(s *State) error {
	if s == nil {
		return ErrNilState
	}
	if id, ok := s.Get("id"); ok && id != "" {
		b.id = id
	}
	if name, ok := s.Get("name"); ok {
		b.name = name
	}
	b.active.Store(s.Bool("active", b.Active()))
	return nil
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// NewUID returns new unique id value.
func NewUID() string {
	return newUID()
}
