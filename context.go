package console

import (
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dudk/console/event"
	"github.com/dudk/console/log"
	"github.com/dudk/console/mutable"
	"github.com/dudk/console/port"
	"github.com/dudk/console/signal"
)

// Context is shared by all entities of a session. It's created with the
// session and must not outlive it.
type Context struct {
	Ports     *port.Registry
	Bus       *event.Bus
	Mutations *mutable.Queue
	Logger    logrus.FieldLogger

	sampleRate   atomic.Int64
	bufferSize   atomic.Int64
	soloed       atomic.Int32
	soloMuteGain atomic.Uint32
	recording    atomic.Bool
	declick      atomic.Int64

	scratch  atomic.Pointer[signal.BufferSet]
	maxPorts int
}

// ContextOption configures context.
type ContextOption func(*Context)

// WithLogger sets the logger of all entities created with the context.
func WithLogger(l logrus.FieldLogger) ContextOption {
	return func(c *Context) {
		c.Logger = l
	}
}

// WithBus sets the event bus.
func WithBus(b *event.Bus) ContextOption {
	return func(c *Context) {
		c.Bus = b
	}
}

// WithMaxPorts limits the number of ports of the registry.
func WithMaxPorts(n int) ContextOption {
	return func(c *Context) {
		c.maxPorts = n
	}
}

const defaultDeclick = 128

// NewContext creates context for provided sample rate and buffer size.
func NewContext(sampleRate, bufferSize int, options ...ContextOption) *Context {
	c := &Context{
		Bus:       event.NewBus(),
		Mutations: mutable.NewQueue(0),
		Logger:    log.Silent(),
	}
	c.sampleRate.Store(int64(sampleRate))
	c.bufferSize.Store(int64(bufferSize))
	c.declick.Store(defaultDeclick)
	c.SetSoloMuteGain(0)
	for _, option := range options {
		option(c)
	}
	registryOptions := []port.Option{port.WithBus(c.Bus)}
	if c.maxPorts > 0 {
		registryOptions = append(registryOptions, port.WithMaxPorts(c.maxPorts))
	}
	c.Ports = port.NewRegistry(bufferSize, registryOptions...)
	c.scratch.Store(signal.NewBufferSet(signal.AudioChannels(2), bufferSize))
	return c
}

// SampleRate returns the current sample rate.
func (c *Context) SampleRate() int {
	return int(c.sampleRate.Load())
}

// SetSampleRate changes sample rate.
func (c *Context) SetSampleRate(sr int) {
	c.sampleRate.Store(int64(sr))
}

// BufferSize returns max number of frames per cycle.
func (c *Context) BufferSize() int {
	return int(c.bufferSize.Load())
}

// SetBufferSize reallocates port and scratch buffers. It must be called
// between cycles.
func (c *Context) SetBufferSize(n int) {
	c.bufferSize.Store(int64(n))
	c.Ports.SetBufferSize(n)
	c.EnsureScratch(c.scratch.Load().Available())
}

// Soloing returns true if any route of the session is soloed.
func (c *Context) Soloing() bool {
	return c.soloed.Load() > 0
}

// SoloedRoutes returns number of self-soloed routes.
func (c *Context) SoloedRoutes() int {
	return int(c.soloed.Load())
}

// AdjustSoloed changes number of self-soloed routes.
func (c *Context) AdjustSoloed(delta int) {
	if c.soloed.Add(int32(delta)) < 0 {
		c.soloed.Store(0)
	}
}

// SoloMuteGain returns gain applied to routes muted by other solos.
func (c *Context) SoloMuteGain() float32 {
	return math.Float32frombits(c.soloMuteGain.Load())
}

// SetSoloMuteGain sets gain applied to routes muted by other solos.
func (c *Context) SetSoloMuteGain(g float32) {
	c.soloMuteGain.Store(math.Float32bits(g))
}

// RecordEnabled returns true if session allows recording.
func (c *Context) RecordEnabled() bool {
	return c.recording.Load()
}

// SetRecordEnabled changes global record permission.
func (c *Context) SetRecordEnabled(v bool) {
	c.recording.Store(v)
}

// DeclickFrames returns length of transport declick ramp.
func (c *Context) DeclickFrames() int {
	return int(c.declick.Load())
}

// SetDeclickFrames changes length of transport declick ramp.
func (c *Context) SetDeclickFrames(n int) {
	c.declick.Store(int64(n))
}

// EnsureScratch makes scratch buffers hold at least max streams. Called
// by sends when they are configured.
func (c *Context) EnsureScratch(max signal.ChannelCount) {
	current := c.scratch.Load()
	size := c.BufferSize()
	if current.Available().Contains(max) && current.Capacity() >= size {
		return
	}
	c.scratch.Store(signal.NewBufferSet(current.Available().Max(max), size))
}

// Scratch returns session scratch buffers with active count set. It's
// used by sends on the real-time goroutine, one at a time.
func (c *Context) Scratch(count signal.ChannelCount) *signal.BufferSet {
	s := c.scratch.Load()
	s.SetCount(count)
	return s
}
