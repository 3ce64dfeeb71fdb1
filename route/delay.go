package route

import (
	"github.com/dudk/console"
	"github.com/dudk/console/event"
	"github.com/dudk/console/signal"
)

// delay is a hidden stage which delays audio to align route output with
// slower parallel paths.
type delay struct {
	console.Base
	frames int
	lines  [][]signal.Sample
	pos    int
}

func newDelay() *delay {
	d := &delay{Base: console.NewBase("align")}
	d.SetVisible(false)
	d.Activate()
	return d
}

func (d *delay) CanSupportIO(in signal.ChannelCount) (signal.ChannelCount, bool) {
	return in, true
}

func (d *delay) ConfigureIO(in, out signal.ChannelCount) error {
	if in.Audio() != len(d.lines) {
		d.allocate(in.Audio(), d.frames)
	}
	return d.Base.ConfigureIO(in, out)
}

func (d *delay) allocate(channels, frames int) {
	d.frames = frames
	d.pos = 0
	d.lines = make([][]signal.Sample, channels)
	for i := range d.lines {
		d.lines[i] = make([]signal.Sample, frames)
	}
}

func (d *delay) Run(bufs *signal.BufferSet, c console.Cycle) {
	if d.frames == 0 {
		return
	}
	channels := min(bufs.Count().Audio(), len(d.lines))
	for i := 0; i < channels; i++ {
		line := d.lines[i]
		pos := d.pos
		data := bufs.Audio(i).Data(c.Frames)
		for j, v := range data {
			data[j] = line[pos]
			line[pos] = v
			if pos++; pos == d.frames {
				pos = 0
			}
		}
	}
	d.pos = (d.pos + c.Frames) % d.frames
}

func (d *delay) Reset() {
	for _, line := range d.lines {
		clear(line)
	}
	d.pos = 0
}

func (d *delay) State() *console.State {
	s := d.Base.State()
	s.Name = "align"
	return s.Set("frames", d.frames)
}

func (d *delay) SetState(s *console.State) error {
	return d.Base.SetState(s)
}

// Latency returns sum of latencies of processors in the chain, excluding
// alignment.
func (r *Route) Latency() int {
	return int(r.latency.Load())
}

// Alignment returns the alignment delay in frames.
func (r *Route) Alignment() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.align.frames
}

// SetAlignment delays route output by frames. It's called by the session
// to compensate latency differences of parallel paths.
func (r *Route) SetAlignment(frames int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if frames < 0 {
		frames = 0
	}
	if frames == r.align.frames {
		return
	}
	r.align.allocate(r.align.Input().Audio(), frames)
}

// updateLatency must be called with write lock held.
func (r *Route) updateLatency() {
	total := 0
	for _, p := range r.chain {
		if l, ok := p.(console.Latent); ok && p.Active() {
			total += l.Latency()
		}
	}
	if int(r.latency.Swap(int64(total))) != total {
		r.ctx.Bus.Emit(event.Message{Kind: event.LatencyChanged, Source: r.id, Value: float64(total)})
	}
}
