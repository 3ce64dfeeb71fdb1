// Package control provides automatable parameters shared by the engine,
// the editor and control surfaces.
package control

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/dudk/console/event"
)

// AutoState defines how control value is produced during a cycle.
type AutoState int32

const (
	// Off ignores automation, the value is set manually.
	Off AutoState = iota
	// Play reads values from the automation list.
	Play
	// Write records manual changes into the automation list.
	Write
	// Touch plays automation until the control is touched.
	Touch
)

var autoStateNames = [...]string{"off", "play", "write", "touch"}

func (s AutoState) String() string {
	if s < 0 || int(s) >= len(autoStateNames) {
		return "unknown"
	}
	return autoStateNames[s]
}

// ParseAutoState returns state by its name. Unknown names result in Off.
func ParseAutoState(s string) (AutoState, bool) {
	for i, n := range autoStateNames {
		if n == s {
			return AutoState(i), true
		}
	}
	return Off, false
}

// Control is a single automatable value. Value and automation state are
// atomic, so the real-time thread reads them without locks.
type Control struct {
	name   string
	source string
	lower  float64
	upper  float64
	normal float64
	bus    *event.Bus

	value    atomic.Uint64
	state    atomic.Int32
	touching atomic.Bool

	mu   sync.RWMutex
	list List
}

// Option configures a control.
type Option func(*Control)

// WithRange sets bounds and the default value.
func WithRange(lower, upper, normal float64) Option {
	return func(c *Control) {
		c.lower, c.upper, c.normal = lower, upper, normal
	}
}

// WithBus makes control emit ControlChanged events. Source identifies the
// owner of the control.
func WithBus(bus *event.Bus, source string) Option {
	return func(c *Control) {
		c.bus = bus
		c.source = source
	}
}

// New creates control with a [0, 1] range by default.
func New(name string, options ...Option) *Control {
	c := &Control{
		name:  name,
		upper: 1,
	}
	for _, option := range options {
		option(c)
	}
	c.store(c.normal)
	return c
}

// Name returns the control name.
func (c *Control) Name() string {
	return c.name
}

// Range returns the bounds of the control.
func (c *Control) Range() (lower, upper float64) {
	return c.lower, c.upper
}

// Normal returns the default value.
func (c *Control) Normal() float64 {
	return c.normal
}

// Value returns the current value.
func (c *Control) Value() float64 {
	return math.Float64frombits(c.value.Load())
}

// Set clamps and stores the value. It returns false if the value didn't
// change.
func (c *Control) Set(v float64) bool {
	v = c.clamp(v)
	if c.Value() == v {
		return false
	}
	c.store(v)
	c.bus.Emit(event.Message{Kind: event.ControlChanged, Source: c.source, Value: v, Data: c.name})
	return true
}

// Reset sets the default value.
func (c *Control) Reset() {
	c.Set(c.normal)
}

// AutoState returns current automation state.
func (c *Control) AutoState() AutoState {
	return AutoState(c.state.Load())
}

// SetAutoState changes automation state.
func (c *Control) SetAutoState(s AutoState) {
	c.state.Store(int32(s))
}

// StartTouch makes touch automation follow manual changes.
func (c *Control) StartTouch() {
	c.touching.Store(true)
}

// StopTouch returns touch automation to playback.
func (c *Control) StopTouch() {
	c.touching.Store(false)
}

// Record stores the current value at frame if automation is being written.
func (c *Control) Record(frame int64) {
	switch c.AutoState() {
	case Write:
	case Touch:
		if !c.touching.Load() {
			return
		}
	default:
		return
	}
	c.mu.Lock()
	c.list.Add(frame, c.Value())
	c.mu.Unlock()
}

// Edit calls fn with exclusive access to the automation list.
func (c *Control) Edit(fn func(*List)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.list)
}

// Automating returns true if values are read from the automation list.
func (c *Control) Automating() bool {
	switch c.AutoState() {
	case Play:
		return true
	case Touch:
		return !c.touching.Load()
	}
	return false
}

// Series fills dst with per-sample values starting at frame. It returns
// false when automation isn't playing, the list is empty or it's being
// edited. In that case dst is untouched and the caller should use Value.
// Called on the real-time thread.
func (c *Control) Series(frame int64, dst []float32) bool {
	if !c.Automating() || len(dst) == 0 {
		return false
	}
	if !c.mu.TryRLock() {
		return false
	}
	defer c.mu.RUnlock()
	if c.list.Len() == 0 {
		return false
	}
	for i := range dst {
		dst[i] = float32(c.clamp(c.list.Eval(frame + int64(i))))
	}
	c.store(float64(dst[len(dst)-1]))
	return true
}

func (c *Control) store(v float64) {
	c.value.Store(math.Float64bits(v))
}

func (c *Control) clamp(v float64) float64 {
	if v < c.lower {
		return c.lower
	}
	if v > c.upper {
		return c.upper
	}
	return v
}
