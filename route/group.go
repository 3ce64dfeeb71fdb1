package route

import (
	"sync"
	"sync/atomic"
)

// Property is a set of route properties shared by a group.
type Property int

// Shared properties.
const (
	GainShared Property = 1 << iota
	MuteShared
	SoloShared

	AllShared = GainShared | MuteShared | SoloShared
)

var propertyNames = map[string]Property{
	"gain": GainShared,
	"mute": MuteShared,
	"solo": SoloShared,
	"all":  AllShared,
}

// ParseProperty returns property by name.
func ParseProperty(s string) (Property, bool) {
	p, ok := propertyNames[s]
	return p, ok
}

// Group fans out gain, mute and solo changes to its members. Gain is
// changed either by the same ratio for all members (relative) or to the
// same value (absolute).
type Group struct {
	name     string
	props    Property
	relative atomic.Bool
	active   atomic.Bool

	mu     sync.Mutex
	routes []*Route
}

// NewGroup returns active relative group.
func NewGroup(name string, props Property) *Group {
	g := &Group{name: name, props: props}
	g.relative.Store(true)
	g.active.Store(true)
	return g
}

// Name returns group name.
func (g *Group) Name() string {
	return g.name
}

// Properties returns shared properties.
func (g *Group) Properties() Property {
	return g.props
}

// Relative returns true if gain is changed relatively.
func (g *Group) Relative() bool {
	return g.relative.Load()
}

// SetRelative switches gain fan-out mode.
func (g *Group) SetRelative(v bool) {
	g.relative.Store(v)
}

// Active returns true if group fans out changes.
func (g *Group) Active() bool {
	return g.active.Load()
}

// SetActive enables or disables fan-out.
func (g *Group) SetActive(v bool) {
	g.active.Store(v)
}

// Add moves route into the group.
func (g *Group) Add(r *Route) {
	if prev := r.group.Load(); prev != nil {
		if prev == g {
			return
		}
		prev.Remove(r)
	}
	g.mu.Lock()
	g.routes = append(g.routes, r)
	g.mu.Unlock()
	r.group.Store(g)
}

// Remove removes route from the group.
func (g *Group) Remove(r *Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.routes {
		if g.routes[i] == r {
			g.routes = append(g.routes[:i], g.routes[i+1:]...)
			r.group.CompareAndSwap(g, nil)
			return
		}
	}
}

// Routes returns members snapshot.
func (g *Group) Routes() []*Route {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Route(nil), g.routes...)
}

func (g *Group) shares(p Property) bool {
	return g.active.Load() && g.props&p != 0
}

// setGain changes gain of all members. Relative change is limited, so no
// member exceeds its upper bound.
func (g *Group) setGain(origin *Route, value float64) {
	members := g.Routes()
	current := origin.Gain()
	if !g.Relative() || current == 0 {
		for _, m := range members {
			m.setGain(value)
		}
		return
	}
	factor := value / current
	for _, m := range members {
		_, upper := m.amp.GainControl().Range()
		if gain := m.Gain(); gain > 0 && gain*factor > upper {
			factor = upper / gain
		}
	}
	for _, m := range members {
		m.setGain(m.Gain() * factor)
	}
}
