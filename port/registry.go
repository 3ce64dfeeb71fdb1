package port

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dudk/console/event"
	"github.com/dudk/console/signal"
)

var (
	// ErrDuplicatePort is returned when port with the same name exists.
	ErrDuplicatePort = errors.New("duplicate port name")
	// ErrExhausted is returned when registry can't hold more ports.
	ErrExhausted = errors.New("port registry exhausted")
	// ErrNotFound is returned when port doesn't exist.
	ErrNotFound = errors.New("port not found")
	// ErrIncompatible is returned when ports can't be connected.
	ErrIncompatible = errors.New("incompatible ports")
)

const defaultMaxPorts = 4096

// Flags of the registered port.
type Flags int

const (
	// IsPhysical marks hardware ports.
	IsPhysical Flags = 1 << iota
)

// Registry owns all ports of the engine. Structural operations are
// serialized with a mutex. The real-time thread only reads the snapshot
// of ports.
type Registry struct {
	mu         sync.Mutex
	ports      map[string]*Port
	maxPorts   int
	bufferSize int
	bus        *event.Bus

	snapshot atomic.Pointer[[]*Port]
	cycle    atomic.Uint64
}

// Option configures the registry.
type Option func(*Registry)

// WithMaxPorts limits number of ports.
func WithMaxPorts(n int) Option {
	return func(r *Registry) {
		r.maxPorts = n
	}
}

// WithBus makes registry emit connection events.
func WithBus(b *event.Bus) Option {
	return func(r *Registry) {
		r.bus = b
	}
}

// NewRegistry creates an empty registry for buffers of provided size.
func NewRegistry(bufferSize int, options ...Option) *Registry {
	r := &Registry{
		ports:      make(map[string]*Port),
		maxPorts:   defaultMaxPorts,
		bufferSize: bufferSize,
	}
	for _, option := range options {
		option(r)
	}
	r.publish()
	return r
}

// Register creates a new port.
func (r *Registry) Register(name string, typ signal.DataType, dir Direction, flags Flags) (*Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[name]; ok {
		return nil, fmt.Errorf("register %s: %w", name, ErrDuplicatePort)
	}
	if len(r.ports) >= r.maxPorts {
		return nil, fmt.Errorf("register %s: %w", name, ErrExhausted)
	}
	p := &Port{
		name:     name,
		dir:      dir,
		typ:      typ,
		physical: flags&IsPhysical != 0,
		registry: r,
	}
	switch typ {
	case signal.Audio:
		p.audio = signal.NewAudioBuffer(r.bufferSize)
	case signal.MIDI:
		p.midi = signal.NewMIDIBuffer(256)
	}
	r.ports[name] = p
	r.publish()
	return p, nil
}

// Unregister removes port and all its connections.
func (r *Registry) Unregister(p *Port) error {
	if p == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ports[p.name] != p {
		return fmt.Errorf("unregister %s: %w", p.name, ErrNotFound)
	}
	for _, c := range p.Connections() {
		c.removeConnection(p)
	}
	empty := []*Port{}
	p.connections.Store(&empty)
	delete(r.ports, p.name)
	r.publish()
	return nil
}

// Rename changes the port name.
func (r *Registry) Rename(p *Port, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[name]; ok {
		return fmt.Errorf("rename %s: %w", name, ErrDuplicatePort)
	}
	delete(r.ports, p.name)
	p.name = name
	r.ports[name] = p
	return nil
}

// Port returns port by name.
func (r *Registry) Port(name string) (*Port, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.ports[name]
	return p, ok
}

// Ports returns sorted names of ports matching prefix.
func (r *Registry) Ports(prefix string, dir Direction, physical bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := []string{}
	for name, p := range r.ports {
		if p.dir == dir && p.physical == physical && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Connect connects output port src to input port dst.
func (r *Registry) Connect(src, dst string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, in, err := r.pair(src, dst)
	if err != nil {
		return err
	}
	if in.addConnection(out) {
		out.addConnection(in)
		r.bus.Emit(event.Message{Kind: event.PortConnected, Source: src, Data: dst})
	}
	return nil
}

// Disconnect breaks connection between src and dst.
func (r *Registry) Disconnect(src, dst string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, in, err := r.pair(src, dst)
	if err != nil {
		return err
	}
	if in.removeConnection(out) {
		out.removeConnection(in)
		r.bus.Emit(event.Message{Kind: event.PortDisconnected, Source: src, Data: dst})
	}
	return nil
}

// DisconnectAll breaks all connections of the port.
func (r *Registry) DisconnectAll(p *Port) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range p.Connections() {
		c.removeConnection(p)
		p.removeConnection(c)
	}
}

func (r *Registry) pair(src, dst string) (*Port, *Port, error) {
	out, ok := r.ports[src]
	if !ok {
		return nil, nil, fmt.Errorf("connect %s: %w", src, ErrNotFound)
	}
	in, ok := r.ports[dst]
	if !ok {
		return nil, nil, fmt.Errorf("connect %s: %w", dst, ErrNotFound)
	}
	if out.dir != Output || in.dir != Input || out.typ != in.typ {
		return nil, nil, fmt.Errorf("connect %s to %s: %w", src, dst, ErrIncompatible)
	}
	return out, in, nil
}

// BufferSize returns the size of port buffers.
func (r *Registry) BufferSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bufferSize
}

// SetBufferSize reallocates all port buffers. It must not run
// concurrently with a cycle.
func (r *Registry) SetBufferSize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n == r.bufferSize {
		return
	}
	r.bufferSize = n
	for _, p := range r.ports {
		if p.audio != nil {
			p.audio = signal.NewAudioBuffer(n)
		}
	}
}

// Cycle returns the current cycle number.
func (r *Registry) Cycle() uint64 {
	return r.cycle.Load()
}

// CycleStart advances the cycle and prepares all ports. Called on the
// real-time thread.
func (r *Registry) CycleStart(nframes int) {
	r.cycle.Add(1)
	for _, p := range r.load() {
		p.cycleStart(nframes)
	}
}

// CycleEnd releases per-cycle bindings. Called on the real-time thread.
func (r *Registry) CycleEnd() {
	for _, p := range r.load() {
		p.cycleEnd()
	}
}

// Len returns number of registered ports.
func (r *Registry) Len() int {
	return len(r.load())
}

func (r *Registry) load() []*Port {
	if s := r.snapshot.Load(); s != nil {
		return *s
	}
	return nil
}

// publish must be called with mu held.
func (r *Registry) publish() {
	s := make([]*Port, 0, len(r.ports))
	for _, p := range r.ports {
		s = append(s, p)
	}
	r.snapshot.Store(&s)
}
