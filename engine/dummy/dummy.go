// Package dummy provides a backend without audio hardware. Cycles are
// clocked by a timer, or run back to back when freewheeling. Capture
// channels are silent and playback is discarded.
package dummy

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dudk/console/engine"
	"github.com/dudk/console/signal"
)

// ErrRunning is returned when backend is started twice.
var ErrRunning = errors.New("dummy backend is running")

const (
	defaultSampleRate = 44100
	defaultBufferSize = 512
	defaultChannels   = 2
)

type (
	// Backend runs cycles on its own goroutine.
	Backend struct {
		name       string
		inputs     int
		outputs    int
		sampleRate int
		bufferSize int

		mu        sync.Mutex
		stop      chan struct{}
		done      chan struct{}
		freewheel atomic.Bool
		resize    chan int
		last      atomic.Pointer[[][]signal.Sample]
	}

	// Option configures dummy backend.
	Option func(*Backend)
)

// WithChannels sets number of capture and playback channels.
func WithChannels(in, out int) Option {
	return func(b *Backend) {
		b.inputs, b.outputs = in, out
	}
}

// WithSampleRate sets sample rate.
func WithSampleRate(sr int) Option {
	return func(b *Backend) {
		b.sampleRate = sr
	}
}

// WithBufferSize sets number of frames per cycle.
func WithBufferSize(n int) Option {
	return func(b *Backend) {
		b.bufferSize = n
	}
}

// WithName sets backend name.
func WithName(name string) Option {
	return func(b *Backend) {
		b.name = name
	}
}

// New creates dummy backend.
func New(options ...Option) *Backend {
	b := &Backend{
		name:       "dummy",
		inputs:     defaultChannels,
		outputs:    defaultChannels,
		sampleRate: defaultSampleRate,
		bufferSize: defaultBufferSize,
		resize:     make(chan int, 1),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// Name returns backend name.
func (b *Backend) Name() string {
	return b.name
}

// Channels returns number of capture and playback channels.
func (b *Backend) Channels() (int, int) {
	return b.inputs, b.outputs
}

// SampleRate returns sample rate.
func (b *Backend) SampleRate() int {
	return b.sampleRate
}

// BufferSize returns number of frames per cycle.
func (b *Backend) BufferSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bufferSize
}

// SetFreewheel makes backend run cycles without waiting.
func (b *Backend) SetFreewheel(on bool) {
	b.freewheel.Store(on)
}

// SetBufferSize changes buffer size. If backend is running, the change
// is applied between cycles.
func (b *Backend) SetBufferSize(n int) {
	b.mu.Lock()
	running := b.stop != nil
	if !running {
		b.bufferSize = n
	}
	b.mu.Unlock()
	if running {
		// only the latest request matters
		select {
		case <-b.resize:
		default:
		}
		b.resize <- n
	}
}

// Playback returns playback buffers of the last cycle. It must not be
// called while backend is running.
func (b *Backend) Playback() [][]signal.Sample {
	if p := b.last.Load(); p != nil {
		return *p
	}
	return nil
}

// Start runs cycles until Stop is called.
func (b *Backend) Start(h engine.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return ErrRunning
	}
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.run(h, b.bufferSize, b.stop, b.done)
	return nil
}

// Stop stops the cycle goroutine and waits for it to return.
func (b *Backend) Stop() error {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Close stops backend.
func (b *Backend) Close() error {
	return b.Stop()
}

func (b *Backend) run(h engine.Handler, bufferSize int, stop, done chan struct{}) {
	defer close(done)
	in := buffers(b.inputs, bufferSize)
	out := buffers(b.outputs, bufferSize)
	b.last.Store(&out)
	period := signal.DurationOf(b.sampleRate, int64(bufferSize))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	next := time.Now()
	for {
		select {
		case <-stop:
			return
		case n := <-b.resize:
			if err := h.SetBufferSize(n); err != nil {
				h.Halt(err)
				return
			}
			b.mu.Lock()
			b.bufferSize = n
			b.mu.Unlock()
			bufferSize = n
			in = buffers(b.inputs, n)
			out = buffers(b.outputs, n)
			b.last.Store(&out)
			period = signal.DurationOf(b.sampleRate, int64(n))
			ticker.Reset(period)
		default:
		}
		if !b.freewheel.Load() {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			// the goroutine was late for more than a cycle
			if now := time.Now(); now.Sub(next) > 2*period {
				h.Xrun()
				next = now
			}
			next = next.Add(period)
		} else {
			next = time.Now()
		}
		for _, c := range in {
			clear(c)
		}
		h.Process(bufferSize, in, out)
	}
}

func buffers(channels, size int) [][]signal.Sample {
	b := make([][]signal.Sample, channels)
	for i := range b {
		b[i] = make([]signal.Sample, size)
	}
	return b
}
