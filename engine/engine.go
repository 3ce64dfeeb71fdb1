// Package engine drives the session from the audio backend callback.
// The backend owns the real-time goroutine and calls Process once per
// cycle. Everything else is done from non-real-time goroutines.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudk/console"
	"github.com/dudk/console/event"
	"github.com/dudk/console/metric"
	"github.com/dudk/console/port"
	"github.com/dudk/console/session"
	"github.com/dudk/console/signal"
)

var (
	// ErrInvalidState is returned when operation isn't allowed in the
	// current engine state.
	ErrInvalidState = errors.New("invalid engine state")
	// ErrNoSession is returned when engine has no session attached.
	ErrNoSession = errors.New("no session attached")
)

// State of the engine.
type State int32

// Engine states.
const (
	Stopped State = iota
	Starting
	Running
	Halted
)

var stateNames = [...]string{"stopped", "starting", "running", "halted"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Handler receives callbacks of the backend.
type Handler interface {
	// Process runs a cycle. in and out hold hardware buffers of nframes.
	Process(nframes int, in, out [][]signal.Sample)
	// SetBufferSize is called between cycles when buffer size changed.
	SetBufferSize(n int) error
	// SetSampleRate is called between cycles when sample rate changed.
	SetSampleRate(sr int)
	// Xrun reports over- or underrun.
	Xrun()
	// Halt reports that backend stopped calling Process because of error.
	Halt(err error)
}

// Backend is an audio device driver which calls handler on its own
// real-time goroutine.
type Backend interface {
	Name() string
	// Channels returns number of capture and playback channels.
	Channels() (in, out int)
	SampleRate() int
	BufferSize() int
	// Start makes backend call handler until Stop.
	Start(h Handler) error
	Stop() error
	// Close releases the device.
	Close() error
}

// Freewheeler is implemented by backends that can run faster than real
// time.
type Freewheeler interface {
	SetFreewheel(bool)
}

// Endpoint takes part in every cycle. Port registry is the first
// endpoint of the engine.
type Endpoint interface {
	CycleStart(nframes int)
	CycleEnd()
	SetBufferSize(n int)
}

// FreewheelFunc replaces session processing while engine is freewheeling.
type FreewheelFunc func(nframes int)

const defaultMonitorInterval = 100 * time.Millisecond

// Engine connects session to the backend.
type Engine struct {
	ctx     *console.Context
	backend Backend
	logger  logrus.FieldLogger
	measure *metric.Measure

	// mu serializes state changes from non-real-time goroutines.
	mu        sync.Mutex
	state     atomic.Int32
	closed    bool
	lockMem   bool
	endpoints atomic.Pointer[[]Endpoint]

	capture  []*port.Port
	playback []*port.Port

	session       atomic.Pointer[session.Session]
	pendingDetach atomic.Bool
	detached      chan struct{}

	freewheel        atomic.Bool
	freewheelHandler atomic.Pointer[FreewheelFunc]

	// owned by the real-time goroutine
	frames          uint32
	wraps           uint32
	monitorInterval time.Duration
	monitorFrames   int
	sinceMonitor    int
	frameTime       atomic.Int64
}

// Option configures engine.
type Option func(*Engine)

// WithLogger sets engine logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMonitorInterval sets how often input monitoring of tracks is
// checked.
func WithMonitorInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.monitorInterval = d
	}
}

// WithMemoryLock locks memory of the process when engine starts, so the
// real-time goroutine doesn't page fault.
func WithMemoryLock() Option {
	return func(e *Engine) {
		e.lockMem = true
	}
}

// New creates engine and registers physical ports of the backend. Context
// is updated with backend sample rate and buffer size.
func New(ctx *console.Context, backend Backend, options ...Option) (*Engine, error) {
	e := &Engine{
		ctx:             ctx,
		backend:         backend,
		logger:          ctx.Logger,
		detached:        make(chan struct{}, 1),
		monitorInterval: defaultMonitorInterval,
	}
	for _, option := range options {
		option(e)
	}
	e.logger = e.logger.WithField("backend", backend.Name())
	ctx.SetSampleRate(backend.SampleRate())
	ctx.SetBufferSize(backend.BufferSize())
	e.measure = metric.Meter(e, backend.SampleRate())
	e.updateMonitorFrames()
	endpoints := []Endpoint{ctx.Ports}
	e.endpoints.Store(&endpoints)

	in, out := backend.Channels()
	for i := 0; i < in; i++ {
		p, err := ctx.Ports.Register(fmt.Sprintf("system:capture_%d", i+1), signal.Audio, port.Output, port.IsPhysical)
		if err != nil {
			return nil, errors.Join(err, e.unregister())
		}
		e.capture = append(e.capture, p)
	}
	for i := 0; i < out; i++ {
		p, err := ctx.Ports.Register(fmt.Sprintf("system:playback_%d", i+1), signal.Audio, port.Input, port.IsPhysical)
		if err != nil {
			return nil, errors.Join(err, e.unregister())
		}
		e.playback = append(e.playback, p)
	}
	return e, nil
}

// Context returns the engine context.
func (e *Engine) Context() *console.Context {
	return e.ctx
}

// State returns current engine state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	if State(e.state.Swap(int32(s))) != s {
		e.ctx.Bus.Emit(event.Message{Kind: event.EngineStateChanged, Source: e.backend.Name(), Value: float64(s)})
	}
}

// Start installs the cycle callback and activates the backend.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("start: engine closed: %w", ErrInvalidState)
	}
	switch s := e.State(); s {
	case Stopped, Halted:
	default:
		return fmt.Errorf("start %s engine: %w", s, ErrInvalidState)
	}
	if e.lockMem {
		if err := lockMemory(); err != nil {
			e.logger.Warnf("lock memory: %v", err)
		}
	}
	e.setState(Starting)
	if err := e.backend.Start(e); err != nil {
		e.setState(Stopped)
		return fmt.Errorf("start %s: %w", e.backend.Name(), err)
	}
	// backend may have halted already
	e.state.CompareAndSwap(int32(Starting), int32(Running))
	if e.State() == Running {
		e.ctx.Bus.Emit(event.Message{Kind: event.EngineStateChanged, Source: e.backend.Name(), Value: float64(Running)})
	}
	e.logger.Debug("engine started")
	return nil
}

// Stop deactivates the backend. If forever is true, the device is closed
// and physical ports are removed; engine can't be started again.
func (e *Engine) Stop(forever bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	var errs console.Errors
	if e.State() != Stopped {
		errs = errs.Add(e.backend.Stop())
	}
	e.setState(Stopped)
	if forever {
		e.closed = true
		errs = errs.Add(e.backend.Close())
		errs = errs.Add(e.unregister())
	}
	e.logger.Debugf("engine stopped, forever: %t", forever)
	return errs.Ret()
}

func (e *Engine) unregister() error {
	var errs console.Errors
	for _, p := range append(e.capture, e.playback...) {
		errs = errs.Add(e.ctx.Ports.Unregister(p))
	}
	e.capture, e.playback = nil, nil
	return errs.Ret()
}

// Attach makes engine process the session. Session must be created with
// the engine context.
func (e *Engine) Attach(s *session.Session) error {
	if s.Context() != e.ctx {
		return fmt.Errorf("attach: session of another context: %w", ErrInvalidState)
	}
	if err := s.SetBufferSize(e.ctx.BufferSize()); err != nil {
		return err
	}
	s.SetSampleRate(e.ctx.SampleRate())
	e.pendingDetach.Store(false)
	e.session.Store(s)
	e.ctx.Bus.Emit(event.Message{Kind: event.SessionAttached, Source: e.backend.Name()})
	return nil
}

// Session returns attached session or nil.
func (e *Engine) Session() *session.Session {
	return e.session.Load()
}

// Detach stops processing of the session. If engine is running, session
// is detached by the real-time goroutine at the start of the next cycle
// and Detach waits for it.
func (e *Engine) Detach(ctx context.Context) error {
	if e.session.Load() == nil {
		return ErrNoSession
	}
	if e.State() != Running {
		e.detach()
		return nil
	}
	// drop stale notification
	select {
	case <-e.detached:
	default:
	}
	e.pendingDetach.Store(true)
	select {
	case <-e.detached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) detach() {
	e.pendingDetach.Store(false)
	if e.session.Swap(nil) != nil {
		e.ctx.Bus.Emit(event.Message{Kind: event.SessionDetached, Source: e.backend.Name()})
	}
	select {
	case e.detached <- struct{}{}:
	default:
	}
}

// AddEndpoint makes endpoint take part in every cycle.
func (e *Engine) AddEndpoint(ep Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	current := *e.endpoints.Load()
	next := append(append([]Endpoint(nil), current...), ep)
	e.endpoints.Store(&next)
}

// RemoveEndpoint removes endpoint added with AddEndpoint.
func (e *Engine) RemoveEndpoint(ep Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	current := *e.endpoints.Load()
	next := make([]Endpoint, 0, len(current))
	for _, c := range current {
		if c != ep {
			next = append(next, c)
		}
	}
	e.endpoints.Store(&next)
}

// SetFreewheel switches faster than real-time mode. While freewheeling,
// handler is called instead of session processing if it's not nil.
func (e *Engine) SetFreewheel(on bool, handler FreewheelFunc) {
	if handler != nil {
		e.freewheelHandler.Store(&handler)
	} else {
		e.freewheelHandler.Store(nil)
	}
	e.freewheel.Store(on)
	if f, ok := e.backend.(Freewheeler); ok {
		f.SetFreewheel(on)
	}
}

// Freewheeling returns true if engine runs faster than real time.
func (e *Engine) Freewheeling() bool {
	return e.freewheel.Load()
}

// FrameTime returns number of frames processed since engine was created.
func (e *Engine) FrameTime() int64 {
	return e.frameTime.Load()
}

// CapturePorts returns physical capture ports.
func (e *Engine) CapturePorts() []*port.Port {
	return e.capture
}

// PlaybackPorts returns physical playback ports.
func (e *Engine) PlaybackPorts() []*port.Port {
	return e.playback
}
