package meter

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudk/console/log"
)

// Levels is a snapshot of a single meter.
type Levels struct {
	ID    string
	Peaks []float32
	Held  []float32
}

const defaultInterval = 50 * time.Millisecond

// Hub polls registered meters on its own goroutine and publishes levels
// to subscribers. Slow subscribers miss snapshots, the hub never blocks.
type Hub struct {
	interval time.Duration
	logger   logrus.FieldLogger

	mu          sync.Mutex
	meters      map[string]*PeakMeter
	subscribers []chan []Levels
	dropped     int
}

// HubOption configures the hub.
type HubOption func(*Hub)

// WithInterval sets polling interval.
func WithInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		h.interval = d
	}
}

// WithLogger sets hub logger.
func WithLogger(l logrus.FieldLogger) HubOption {
	return func(h *Hub) {
		h.logger = l
	}
}

// NewHub creates a hub without meters.
func NewHub(options ...HubOption) *Hub {
	h := &Hub{
		interval: defaultInterval,
		meters:   make(map[string]*PeakMeter),
		logger:   log.Silent(),
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// Add registers meter.
func (h *Hub) Add(m *PeakMeter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.meters[m.ID()] = m
}

// Remove unregisters meter.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.meters, id)
}

// Subscribe returns channel of snapshots. The channel is closed when hub
// is stopped.
func (h *Hub) Subscribe(capacity int) <-chan []Levels {
	c := make(chan []Levels, capacity)
	h.mu.Lock()
	h.subscribers = append(h.subscribers, c)
	h.mu.Unlock()
	return c
}

// Run polls meters until context is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer func() {
		ticker.Stop()
		h.mu.Lock()
		for _, c := range h.subscribers {
			close(c)
		}
		h.subscribers = nil
		h.mu.Unlock()
	}()
	for {
		select {
		case <-ticker.C:
			h.Poll()
		case <-ctx.Done():
			return
		}
	}
}

// Poll publishes a snapshot of all meters.
func (h *Hub) Poll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subscribers) == 0 {
		return
	}
	levels := make([]Levels, 0, len(h.meters))
	for id, m := range h.meters {
		l := Levels{ID: id}
		l.Peaks, l.Held = m.Levels(nil, nil)
		levels = append(levels, l)
	}
	for _, c := range h.subscribers {
		select {
		case c <- levels:
		default:
			h.dropped++
			h.logger.Debugf("meter snapshot dropped: %d total", h.dropped)
		}
	}
}
