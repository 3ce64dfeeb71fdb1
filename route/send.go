package route

import (
	"github.com/dudk/console/delivery"
	"github.com/dudk/console/port"
)

// InternalSends returns internal sends of the chain.
func (r *Route) InternalSends() []*delivery.InternalSend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sends []*delivery.InternalSend
	for _, p := range r.chain {
		if s, ok := p.(*delivery.InternalSend); ok {
			sends = append(sends, s)
		}
	}
	return sends
}

// ResolveSends binds internal sends to their targets. It returns the
// number of sends left inert.
func (r *Route) ResolveSends(lookup func(id string) (*delivery.InternalReturn, bool)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	inert := 0
	for _, p := range r.chain {
		if s, ok := p.(*delivery.InternalSend); ok && !s.Resolve(lookup) {
			inert++
		}
	}
	return inert
}

// NewInternalSend creates send from this route to the target route. It
// has to be added to the chain and resolved.
func (r *Route) NewInternalSend(target *Route, options ...delivery.Option) *delivery.InternalSend {
	options = append([]delivery.Option{delivery.WithName("send to " + target.Name())}, options...)
	return delivery.NewInternalSend(r.ctx, r, target.ID(), options...)
}

// NewSend creates send with own output ports.
func (r *Route) NewSend(name string, options ...delivery.Option) *delivery.Send {
	options = append([]delivery.Option{delivery.WithName(name)}, options...)
	return delivery.NewSend(r.ctx, r, options...)
}

// Feeds returns true if route output is connected to the input of other
// route directly or through internal send.
func (r *Route) Feeds(other *Route) bool {
	if other == r {
		return false
	}
	for _, s := range r.InternalSends() {
		if s.TargetID() == other.ID() {
			return true
		}
	}
	r.mu.RLock()
	outputs := append(append([]*port.Port(nil), r.main.Ports()...), r.sendPorts()...)
	r.mu.RUnlock()
	other.mu.RLock()
	inputs := append([]*port.Port(nil), other.inputs...)
	other.mu.RUnlock()
	for _, in := range inputs {
		for _, c := range in.Connections() {
			for _, out := range outputs {
				if c == out {
					return true
				}
			}
		}
	}
	return false
}

func (r *Route) sendPorts() []*port.Port {
	var ports []*port.Port
	for _, p := range r.chain {
		if s, ok := p.(*delivery.Send); ok {
			ports = append(ports, s.Ports()...)
		}
	}
	return ports
}
