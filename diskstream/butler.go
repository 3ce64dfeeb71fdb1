package diskstream

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudk/console/log"
)

// Stream is serviced by the butler.
type Stream interface {
	NeedsButler() bool
	Service() error
}

const defaultInterval = 100 * time.Millisecond

// Butler does disk I/O for streams. It's woken by the real-time goroutine
// without blocking and also checks streams periodically.
type Butler struct {
	logger   logrus.FieldLogger
	interval time.Duration
	wake     chan struct{}

	mu      sync.Mutex
	streams []Stream

	// serviceMu serializes Service calls.
	serviceMu sync.Mutex
}

// ButlerOption configures butler.
type ButlerOption func(*Butler)

// WithInterval sets period of checks.
func WithInterval(d time.Duration) ButlerOption {
	return func(b *Butler) {
		b.interval = d
	}
}

// WithLogger sets butler logger.
func WithLogger(l logrus.FieldLogger) ButlerOption {
	return func(b *Butler) {
		b.logger = l
	}
}

// NewButler returns butler without streams.
func NewButler(options ...ButlerOption) *Butler {
	b := &Butler{
		logger:   log.Silent(),
		interval: defaultInterval,
		wake:     make(chan struct{}, 1),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// Add registers stream.
func (b *Butler) Add(s Stream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.streams {
		if existing == s {
			return
		}
	}
	b.streams = append(b.streams, s)
}

// Remove unregisters stream.
func (b *Butler) Remove(s Stream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.streams {
		if b.streams[i] == s {
			b.streams = append(b.streams[:i], b.streams[i+1:]...)
			return
		}
	}
}

// Wake schedules servicing. It never blocks and is safe to call from the
// real-time goroutine.
func (b *Butler) Wake() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run services streams until context is done.
func (b *Butler) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		case <-ticker.C:
		}
		b.Service()
	}
}

// Service does pending work of all streams and returns number of serviced
// streams. Failures are logged, the stream is kept. Concurrent calls are
// serialized, so it can be called while Run is active.
func (b *Butler) Service() int {
	b.serviceMu.Lock()
	defer b.serviceMu.Unlock()
	b.mu.Lock()
	streams := append([]Stream(nil), b.streams...)
	b.mu.Unlock()
	serviced := 0
	for _, s := range streams {
		if !s.NeedsButler() {
			continue
		}
		if err := s.Service(); err != nil {
			b.logger.Warnf("disk stream: %v", err)
			continue
		}
		serviced++
	}
	return serviced
}
