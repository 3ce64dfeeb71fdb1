package session

import (
	"math"

	"github.com/dudk/console/amp"
	"github.com/dudk/console/event"
)

// Transport states published with TransportStateChanged.
const (
	Stopped = 0
	Rolling = 1
)

// Speed returns current transport speed. Zero means stopped.
func (s *Session) Speed() float64 {
	return math.Float64frombits(s.speed.Load())
}

// Rolling returns true if transport moves.
func (s *Session) Rolling() bool {
	return s.Speed() != 0
}

// Position returns transport position in frames.
func (s *Session) Position() int64 {
	return s.position.Load()
}

// Roll starts transport at normal speed.
func (s *Session) Roll() error {
	return s.RequestSpeed(1)
}

// Stop stops transport. Outputs are faded out within the next cycle.
func (s *Session) Stop() error {
	return s.RequestSpeed(0)
}

// RequestSpeed changes transport speed at the next cycle.
func (s *Session) RequestSpeed(speed float64) error {
	return s.ctx.Mutations.TryPush(s.mutable.Mutate(func() {
		s.setSpeed(speed)
	}))
}

// Locate moves transport to frame. Playback of tracks restarts when the
// butler has read the new position.
func (s *Session) Locate(frame int64) error {
	frame = max(frame, 0)
	if err := s.ctx.Mutations.TryPush(s.mutable.Mutate(func() {
		s.locating = true
		s.position.Store(frame)
	})); err != nil {
		return err
	}
	for _, t := range s.Tracks() {
		t.Locate(frame)
	}
	for _, r := range s.Routes() {
		r.Reset()
	}
	return nil
}

// SetRecordEnabled allows armed tracks to record.
func (s *Session) SetRecordEnabled(v bool) {
	s.ctx.SetRecordEnabled(v)
}

// setSpeed is called on the real-time goroutine.
func (s *Session) setSpeed(speed float64) {
	current := s.Speed()
	switch {
	case speed == current:
		s.stopping = false
	case speed == 0:
		// keep rolling for one more cycle which is faded out
		s.stopping = true
	default:
		s.stopping = false
		s.speed.Store(math.Float64bits(speed))
		if current == 0 {
			s.declick(amp.FadeIn)
			s.ctx.Bus.Emit(event.Message{Kind: event.TransportStateChanged, Value: Rolling})
		}
	}
}

// declick is called on the real-time goroutine.
func (s *Session) declick(direction int) {
	if order := s.order.Load(); order != nil {
		for _, n := range *order {
			n.route.Declick(direction)
		}
	}
}
