package delivery

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/dudk/console"
	"github.com/dudk/console/signal"
)

// accumulator collects signal of all sends during a cycle.
type accumulator struct {
	bufs  *signal.BufferSet
	cycle uint64
}

// InternalReturn mixes signal of internal sends into the chain of its
// route. It keeps references to attached sends to clear them when the
// route goes away.
type InternalReturn struct {
	console.Base
	ctx       *console.Context
	acc       atomic.Pointer[accumulator]
	goingAway atomic.Bool

	mu    sync.Mutex
	sends map[*InternalSend]struct{}
}

// NewReturn creates hidden return.
func NewReturn(ctx *console.Context) *InternalReturn {
	r := &InternalReturn{
		Base:  console.NewBase("return"),
		ctx:   ctx,
		sends: make(map[*InternalSend]struct{}),
	}
	r.SetVisible(false)
	r.acc.Store(newAccumulator(signal.ChannelCount{}, ctx.BufferSize()))
	r.Activate()
	return r
}

func newAccumulator(c signal.ChannelCount, frames int) *accumulator {
	return &accumulator{
		bufs:  signal.NewBufferSet(c, frames),
		cycle: math.MaxUint64,
	}
}

// Channels returns the layout sends mix into.
func (r *InternalReturn) Channels() signal.ChannelCount {
	return r.acc.Load().bufs.Count()
}

// Sends returns number of attached sends.
func (r *InternalReturn) Sends() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

// CanSupportIO accepts any input.
func (r *InternalReturn) CanSupportIO(in signal.ChannelCount) (signal.ChannelCount, bool) {
	return in, true
}

// ConfigureIO reallocates accumulator if layout changed.
func (r *InternalReturn) ConfigureIO(in, out signal.ChannelCount) error {
	if acc := r.acc.Load(); acc.bufs.Count() != in || acc.bufs.Capacity() < r.ctx.BufferSize() {
		r.acc.Store(newAccumulator(in, r.ctx.BufferSize()))
	}
	return r.Base.ConfigureIO(in, out)
}

// prepare returns accumulator for the cycle. It's silenced when the
// first send of the cycle writes to it.
func (r *InternalReturn) prepare(n int, cycle uint64) *signal.BufferSet {
	acc := r.acc.Load()
	if acc.cycle != cycle {
		acc.cycle = cycle
		acc.bufs.Silence(n, 0)
	}
	return acc.bufs
}

// Run mixes signal that was sent during this cycle.
func (r *InternalReturn) Run(bufs *signal.BufferSet, c console.Cycle) {
	acc := r.acc.Load()
	if acc.cycle != c.Index {
		return
	}
	bufs.AcceptFrom(acc.bufs, c.Frames)
}

// GoingAway returns true if the route of the return is being destroyed.
func (r *InternalReturn) GoingAway() bool {
	return r.goingAway.Load()
}

// Drop marks return as going away and makes all sends inert.
func (r *InternalReturn) Drop() {
	r.goingAway.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.sends {
		s.targetGoingAway()
		delete(r.sends, s)
	}
}

func (r *InternalReturn) attach(s *InternalSend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends[s] = struct{}{}
}

func (r *InternalReturn) detach(s *InternalSend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sends, s)
}

// State returns the return state.
func (r *InternalReturn) State() *console.State {
	s := r.Base.State()
	s.Name = "return"
	return s
}
