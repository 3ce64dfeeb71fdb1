package session

import (
	"math"
	"time"

	"github.com/dudk/console"
	"github.com/dudk/console/amp"
	"github.com/dudk/console/event"
)

// Process runs all routes for a cycle of nframes. It's called by the
// engine on the real-time goroutine.
func (s *Session) Process(nframes int) {
	start := time.Now()
	s.ctx.Mutations.Drain()
	if s.locating {
		s.locating = false
		if s.Rolling() {
			s.declick(amp.FadeIn)
		}
	}
	stopping := s.stopping
	if stopping {
		s.declick(amp.FadeOut)
	}
	speed := s.Speed()
	position := s.position.Load()
	c := console.Cycle{
		Start:  position,
		End:    position + int64(math.Round(float64(nframes)*speed)),
		Frames: nframes,
		Speed:  speed,
		Index:  s.ctx.Ports.Cycle(),
	}
	if order := s.order.Load(); order != nil {
		for _, n := range *order {
			n.process(c)
		}
	}
	if speed != 0 {
		s.position.Store(c.End)
	}
	if stopping {
		s.stopping = false
		s.speed.Store(math.Float64bits(0))
		s.declick(amp.FadeIn)
		s.ctx.Bus.Emit(event.Message{Kind: event.TransportStateChanged, Value: Stopped})
	}
	s.measure.Cycle(nframes, time.Since(start))
}

// MonitoringCheck refreshes input monitoring state of all tracks. It's
// called periodically by the engine.
func (s *Session) MonitoringCheck() {
	if order := s.order.Load(); order != nil {
		for _, n := range *order {
			if n.track != nil {
				n.track.MonitoringCheck()
			}
		}
	}
}

// SetBufferSize reallocates buffers of all routes. It's called by the
// engine between cycles.
func (s *Session) SetBufferSize(n int) error {
	s.ctx.SetBufferSize(n)
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs console.Errors
	for _, r := range s.routes {
		errs = errs.Add(r.Renegotiate())
		if t, ok := s.tracks[r.ID()]; ok {
			t.SetBufferSize()
		}
	}
	return errs.Ret()
}

// SetSampleRate changes sample rate of the session.
func (s *Session) SetSampleRate(sr int) {
	s.ctx.SetSampleRate(sr)
	s.measure.SetSampleRate(sr)
}

// Xrun counts over- or underrun reported by the backend.
func (s *Session) Xrun() {
	s.measure.Xrun()
}
