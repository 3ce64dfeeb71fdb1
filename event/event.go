// Package event delivers notifications between the real-time thread and
// the rest of the program. Every consumer owns a buffered channel.
// Producers never block: when a consumer's channel is full, the message
// is dropped and counted.
package event

import (
	"sync"
	"sync/atomic"
)

// Kind identifies the type of notification.
type Kind int

// Kinds of notifications.
const (
	RouteAdded Kind = iota
	RouteRemoved
	RouteGoingAway
	GraphReordered
	ProcessorsChanged
	PortConnected
	PortDisconnected
	SoloChanged
	MuteChanged
	GainChanged
	ControlChanged
	SessionAttached
	SessionDetached
	EngineStateChanged
	Xrun
	RecordStateChanged
	TransportStateChanged
	LatencyChanged
	MonitoringChanged
)

var kindNames = map[Kind]string{
	RouteAdded:            "route added",
	RouteRemoved:          "route removed",
	RouteGoingAway:        "route going away",
	GraphReordered:        "graph reordered",
	ProcessorsChanged:     "processors changed",
	PortConnected:         "port connected",
	PortDisconnected:      "port disconnected",
	SoloChanged:           "solo changed",
	MuteChanged:           "mute changed",
	GainChanged:           "gain changed",
	ControlChanged:        "control changed",
	SessionAttached:       "session attached",
	SessionDetached:       "session detached",
	EngineStateChanged:    "engine state changed",
	Xrun:                  "xrun",
	RecordStateChanged:    "record state changed",
	TransportStateChanged: "transport state changed",
	LatencyChanged:        "latency changed",
	MonitoringChanged:     "monitoring changed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Message is a single notification. Source is the ID of the entity which
// emitted it. Value carries a kind-specific number and Data an optional
// payload; the frequent kinds do not use Data to avoid allocation.
type Message struct {
	Kind   Kind
	Source string
	Value  float64
	Data   any
}

const defaultCapacity = 1024

// Bus fans out messages to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*Subscription
	dropped     atomic.Int64
}

// Subscription is a consumer of the bus.
type Subscription struct {
	bus   *Bus
	c     chan Message
	kinds map[Kind]struct{}
	once  sync.Once
}

// NewBus returns a bus without subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a consumer for provided kinds. If no kinds are
// provided, the consumer receives all messages.
func (b *Bus) Subscribe(capacity int, kinds ...Kind) *Subscription {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	s := &Subscription{
		bus: b,
		c:   make(chan Message, capacity),
	}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()
	return s
}

// Emit sends message to all interested subscribers without blocking. It's
// safe to call from the real-time thread: if the subscribers list is
// being modified, the message is dropped.
func (b *Bus) Emit(m Message) {
	if b == nil {
		return
	}
	if !b.mu.TryRLock() {
		b.dropped.Add(1)
		return
	}
	defer b.mu.RUnlock()
	for _, s := range b.subscribers {
		if !s.wants(m.Kind) {
			continue
		}
		select {
		case s.c <- m:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns number of messages which were not delivered.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// C returns the channel to receive messages from.
func (s *Subscription) C() <-chan Message {
	return s.c
}

// Close removes subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		for i := range b.subscribers {
			if b.subscribers[i] == s {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(s.c)
	})
}

func (s *Subscription) wants(k Kind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}
