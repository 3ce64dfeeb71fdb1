package route

import (
	"errors"
	"fmt"

	"github.com/dudk/console"
	"github.com/dudk/console/delivery"
	"github.com/dudk/console/event"
	"github.com/dudk/console/meter"
	"github.com/dudk/console/signal"
)

type positionKind int

const (
	preFader positionKind = iota
	postFader
	before
	after
)

// Position defines where processor is inserted into the chain.
type Position struct {
	kind positionKind
	ref  console.Processor
}

// PreFader inserts processor immediately before the amp.
func PreFader() Position {
	return Position{kind: preFader}
}

// PostFader inserts processor at the end of the chain, before the main
// delivery.
func PostFader() Position {
	return Position{kind: postFader}
}

// Before inserts processor before ref.
func Before(ref console.Processor) Position {
	return Position{kind: before, ref: ref}
}

// After inserts processor after ref.
func After(ref console.Processor) Position {
	return Position{kind: after, ref: ref}
}

// Processors returns a snapshot of the chain.
func (r *Route) Processors() []console.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]console.Processor(nil), r.chain...)
}

// VisibleProcessors returns a snapshot of processors that can be
// reordered.
func (r *Route) VisibleProcessors() []console.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return visible(r.chain)
}

// Processor returns processor by id.
func (r *Route) Processor(id string) (console.Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.chain {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// AddProcessor inserts p at provided position and renegotiates the chain.
// If the chain can't be negotiated, it's left in previous configuration
// and *console.NegotiationError is returned.
func (r *Route) AddProcessor(p console.Processor, pos Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.goingAway.Load() {
		return ErrGoingAway
	}
	if indexOf(r.chain, p) >= 0 {
		return fmt.Errorf("add %s: %w", p.Name(), console.ErrDuplicateProcessor)
	}
	idx, err := r.insertIndex(pos)
	if err != nil {
		return fmt.Errorf("add %s: %w", p.Name(), err)
	}
	chain := make([]console.Processor, 0, len(r.chain)+1)
	chain = append(chain, r.chain[:idx]...)
	chain = append(chain, p)
	chain = append(chain, r.chain[idx:]...)
	if err := r.apply(r.input, chain); err != nil {
		var negotiation *console.NegotiationError
		if !errors.As(err, &negotiation) {
			// configuration might have bound ports
			if rel, ok := p.(console.Releaser); ok {
				err = errors.Join(err, rel.Release())
			}
		}
		return fmt.Errorf("add %s to %s: %w", p.Name(), r.name, err)
	}
	p.Activate()
	r.logger.WithField("processor", p.ID()).Debugf("added %s at %d", p.Name(), idx)
	r.chainChanged()
	return nil
}

// RemoveProcessor removes p from the chain and renegotiates it. Removed
// processor is deactivated and its ports are released.
func (r *Route) RemoveProcessor(p console.Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.goingAway.Load() {
		return ErrGoingAway
	}
	if r.fixed(p) {
		return fmt.Errorf("remove %s: %w", p.Name(), console.ErrFixedProcessor)
	}
	idx := indexOf(r.chain, p)
	if idx < 0 {
		return fmt.Errorf("remove %s: %w", p.Name(), console.ErrProcessorNotFound)
	}
	chain := make([]console.Processor, 0, len(r.chain)-1)
	chain = append(chain, r.chain[:idx]...)
	chain = append(chain, r.chain[idx+1:]...)
	if err := r.apply(r.input, chain); err != nil {
		return fmt.Errorf("remove %s from %s: %w", p.Name(), r.name, err)
	}
	deactivateNow(p)
	var err error
	if rel, ok := p.(console.Releaser); ok {
		err = rel.Release()
	}
	r.chainChanged()
	return err
}

// ReorderProcessors changes relative order of visible processors. Hidden
// processors keep their positions. If new order can't be negotiated,
// previous order is restored.
func (r *Route) ReorderProcessors(order []console.Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.goingAway.Load() {
		return ErrGoingAway
	}
	current := visible(r.chain)
	if len(order) != len(current) {
		return fmt.Errorf("reorder %s: %w", r.name, console.ErrInvalidOrder)
	}
	seen := make(map[console.Processor]struct{}, len(order))
	same := true
	for i, p := range order {
		if _, ok := seen[p]; ok || indexOf(current, p) < 0 {
			return fmt.Errorf("reorder %s: %w", r.name, console.ErrInvalidOrder)
		}
		seen[p] = struct{}{}
		if current[i] != p {
			same = false
		}
	}
	if same {
		return nil
	}
	chain := make([]console.Processor, len(r.chain))
	k := 0
	for i, p := range r.chain {
		if p.Visible() {
			p = order[k]
			k++
		}
		chain[i] = p
	}
	if err := r.apply(r.input, chain); err != nil {
		return fmt.Errorf("reorder %s: %w", r.name, err)
	}
	if r.meterMoved() {
		r.meterPoint.Store(int32(meter.Custom))
	}
	r.chainChanged()
	return nil
}

// MeterPoint returns current metering point.
func (r *Route) MeterPoint() meter.Point {
	return meter.Point(r.meterPoint.Load())
}

// SetMeterPoint moves the peak meter. Custom point keeps meter where it
// is.
func (r *Route) SetMeterPoint(mp meter.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.goingAway.Load() {
		return ErrGoingAway
	}
	if mp == r.MeterPoint() || mp == meter.Custom {
		r.meterPoint.Store(int32(mp))
		return nil
	}
	chain := make([]console.Processor, 0, len(r.chain))
	for _, p := range r.chain {
		if p != r.meter {
			chain = append(chain, p)
		}
	}
	var idx int
	switch mp {
	case meter.Input:
		idx = indexOf(chain, r.ret) + 1
	case meter.PreFader:
		idx = indexOf(chain, r.amp)
	case meter.PostFader:
		idx = indexOf(chain, r.amp) + 1
	case meter.Output:
		idx = indexOf(chain, r.main)
	}
	chain = append(chain[:idx], append([]console.Processor{r.meter}, chain[idx:]...)...)
	if err := r.apply(r.input, chain); err != nil {
		return err
	}
	r.meterPoint.Store(int32(mp))
	r.meter.Reset()
	r.notify(event.ProcessorsChanged)
	return nil
}

// insertIndex must be called with the write lock held.
func (r *Route) insertIndex(pos Position) (int, error) {
	lower, upper := indexOf(r.chain, r.ret)+1, indexOf(r.chain, r.align)
	var idx int
	switch pos.kind {
	case preFader:
		return indexOf(r.chain, r.amp), nil
	case postFader:
		return upper, nil
	case before:
		idx = indexOf(r.chain, pos.ref)
	case after:
		idx = indexOf(r.chain, pos.ref)
		if idx >= 0 {
			idx++
		}
	}
	if idx < 0 {
		return 0, console.ErrProcessorNotFound
	}
	return max(lower, min(idx, upper)), nil
}

// negotiate walks the chain from input and returns negotiated counts:
// ios[i] is the input of chain[i] and ios[len(chain)] is the output.
func negotiate(in signal.ChannelCount, chain []console.Processor) ([]signal.ChannelCount, error) {
	ios := make([]signal.ChannelCount, len(chain)+1)
	ios[0] = in
	for i, p := range chain {
		out, ok := p.CanSupportIO(in)
		if !ok {
			return nil, &console.NegotiationError{Index: i, Processor: p.Name(), Input: in}
		}
		ios[i+1] = out
		in = out
	}
	return ios, nil
}

// apply negotiates and commits the chain. If commit fails, previous chain
// is committed again. Must be called with write lock held.
func (r *Route) apply(in signal.ChannelCount, chain []console.Processor) error {
	ios, err := negotiate(in, chain)
	if err != nil {
		return err
	}
	if err := r.commit(chain, ios); err != nil {
		if r.chain == nil {
			return err
		}
		prev, perr := negotiate(r.input, r.chain)
		if perr != nil {
			return errors.Join(err, perr)
		}
		return errors.Join(err, r.commit(r.chain, prev))
	}
	r.chain = chain
	r.updatePlacements()
	return nil
}

// commit configures every stage and reconciles output ports with the
// final stage.
func (r *Route) commit(chain []console.Processor, ios []signal.ChannelCount) error {
	widest := ios[0]
	for i, p := range chain {
		if err := p.ConfigureIO(ios[i], ios[i+1]); err != nil {
			return fmt.Errorf("configure %s: %w", p.Name(), err)
		}
		widest = widest.Max(ios[i+1])
	}
	if err := r.main.EnsurePorts(ios[len(chain)]); err != nil {
		return err
	}
	r.bufs.Ensure(widest, r.ctx.BufferSize())
	return nil
}

// updatePlacements tells deliveries if they are before or after the amp.
func (r *Route) updatePlacements() {
	amp := indexOf(r.chain, r.amp)
	for i, p := range r.chain {
		d, ok := p.(interface{ SetPlacement(delivery.Placement) })
		if !ok {
			continue
		}
		if i < amp {
			d.SetPlacement(delivery.PreFader)
		} else {
			d.SetPlacement(delivery.PostFader)
		}
	}
}

func (r *Route) meterMoved() bool {
	m, a := indexOf(r.chain, r.meter), indexOf(r.chain, r.amp)
	switch r.MeterPoint() {
	case meter.PreFader:
		return m != a-1
	case meter.PostFader:
		return m != a+1
	case meter.Input:
		return m != indexOf(r.chain, r.ret)+1
	case meter.Output:
		return m != indexOf(r.chain, r.main)-1
	}
	return false
}

func (r *Route) chainChanged() {
	r.notify(event.ProcessorsChanged)
	r.updateLatency()
}

func (r *Route) fixed(p console.Processor) bool {
	switch p {
	case r.ret, r.trim, r.amp, r.meter, r.align, r.main:
		return true
	}
	return false
}

func visible(chain []console.Processor) []console.Processor {
	v := []console.Processor{}
	for _, p := range chain {
		if p.Visible() {
			v = append(v, p)
		}
	}
	return v
}

func indexOf(chain []console.Processor, p console.Processor) int {
	for i := range chain {
		if chain[i] == p {
			return i
		}
	}
	return -1
}
