package engine

import (
	"math"
	"time"

	"github.com/dudk/console/event"
	"github.com/dudk/console/signal"
)

// Process runs a single cycle. It's called by the backend on the
// real-time goroutine.
func (e *Engine) Process(nframes int, in, out [][]signal.Sample) {
	start := time.Now()
	e.advance(nframes)

	if e.pendingDetach.Load() {
		e.detach()
		silence(out, nframes)
		return
	}

	endpoints := *e.endpoints.Load()
	for _, ep := range endpoints {
		ep.CycleStart(nframes)
	}
	for i, p := range e.capture {
		if i < len(in) && len(in[i]) >= nframes {
			p.Attach(in[i][:nframes])
		}
	}

	s := e.session.Load()
	if s != nil {
		e.sinceMonitor += nframes
		if e.sinceMonitor >= e.monitorFrames {
			e.sinceMonitor = 0
			s.MonitoringCheck()
		}
	}
	if e.freewheel.Load() {
		if h := e.freewheelHandler.Load(); h != nil {
			(*h)(nframes)
		} else if s != nil {
			s.Process(nframes)
		}
	} else if s != nil {
		s.Process(nframes)
	}

	for i, p := range e.playback {
		if i >= len(out) {
			break
		}
		copy(out[i][:nframes], p.Audio(nframes))
	}
	for i := len(e.playback); i < len(out); i++ {
		clear(out[i][:nframes])
	}
	for _, ep := range endpoints {
		ep.CycleEnd()
	}
	e.measure.Cycle(nframes, time.Since(start))
}

// advance counts processed frames. Frame counter is 32-bit and wraps,
// number of wraps extends it to 64 bits.
func (e *Engine) advance(nframes int) {
	next := e.frames + uint32(nframes)
	if next < e.frames {
		e.wraps++
	}
	e.frames = next
	e.frameTime.Store(int64(e.wraps)<<32 | int64(e.frames))
}

// SetBufferSize propagates new buffer size to all endpoints and the
// session. Backend calls it between cycles.
func (e *Engine) SetBufferSize(n int) error {
	e.ctx.SetBufferSize(n)
	for _, ep := range *e.endpoints.Load() {
		ep.SetBufferSize(n)
	}
	e.updateMonitorFrames()
	if s := e.session.Load(); s != nil {
		return s.SetBufferSize(n)
	}
	return nil
}

// SetSampleRate propagates new sample rate. Backend calls it between
// cycles.
func (e *Engine) SetSampleRate(sr int) {
	e.ctx.SetSampleRate(sr)
	e.measure.SetSampleRate(sr)
	e.updateMonitorFrames()
	if s := e.session.Load(); s != nil {
		s.SetSampleRate(sr)
	}
}

// Xrun counts over- or underrun.
func (e *Engine) Xrun() {
	e.measure.Xrun()
	if s := e.session.Load(); s != nil {
		s.Xrun()
	}
	e.ctx.Bus.Emit(event.Message{Kind: event.Xrun, Source: e.backend.Name()})
}

// Halt marks engine halted. Backend calls it when it can't continue.
func (e *Engine) Halt(err error) {
	e.setState(Halted)
	e.logger.Errorf("engine halted: %v", err)
}

func (e *Engine) updateMonitorFrames() {
	frames := int(math.Round(e.monitorInterval.Seconds() * float64(e.ctx.SampleRate())))
	e.monitorFrames = max(frames, 1)
}

func silence(out [][]signal.Sample, nframes int) {
	for _, o := range out {
		clear(o[:min(nframes, len(o))])
	}
}
