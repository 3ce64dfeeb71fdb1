// Package session owns the routes of a mix and drives them in dependency
// order on every cycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dudk/console"
	"github.com/dudk/console/delivery"
	"github.com/dudk/console/diskstream"
	"github.com/dudk/console/event"
	"github.com/dudk/console/meter"
	"github.com/dudk/console/metric"
	"github.com/dudk/console/mutable"
	"github.com/dudk/console/route"
	"github.com/dudk/console/track"
)

var (
	// ErrDuplicateRoute is returned when route with the same name exists.
	ErrDuplicateRoute = errors.New("duplicate route name")
	// ErrRouteNotFound is returned when route doesn't belong to session.
	ErrRouteNotFound = errors.New("route not found")
	// ErrMasterRoute is returned on attempt to remove master route.
	ErrMasterRoute = errors.New("master route can't be removed")
	// ErrDuplicateGroup is returned when group with the same name exists.
	ErrDuplicateGroup = errors.New("duplicate group name")
	// ErrFeedback is returned when routes feed each other.
	ErrFeedback = errors.New("feedback in routing graph")
)

// MasterName is the name of the master route.
const MasterName = "master"

// node is an entry of the process order.
type node struct {
	route *route.Route
	track *track.Track
}

func (n node) process(c console.Cycle) {
	if n.track != nil {
		n.track.Process(c)
		return
	}
	n.route.Process(c)
}

// Session is the set of routes processed together.
type Session struct {
	mutable mutable.Context
	ctx     *console.Context
	logger  logrus.FieldLogger
	butler  *diskstream.Butler
	meters  *meter.Hub
	measure *metric.Measure

	factories map[string]Factory

	mu     sync.Mutex
	routes []*route.Route
	tracks map[string]*track.Track
	groups map[string]*route.Group
	master *route.Route
	// reach[i][j] is true if routes[i] feeds routes[j] directly or not.
	reach [][]bool

	order atomic.Pointer[[]node]

	// transport is owned by the real-time goroutine and published with
	// atomics.
	speed     atomic.Uint64
	position  atomic.Int64
	stopping  bool
	locating  bool
	destroyed atomic.Bool
}

// Option configures session.
type Option func(*Session) error

// WithLogger sets session logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) error {
		s.logger = l
		return nil
	}
}

// WithMaster creates master route with provided options.
func WithMaster(options ...route.Option) Option {
	return func(s *Session) error {
		m, err := route.New(s.ctx, MasterName, append([]route.Option{route.WithLogger(s.logger)}, options...)...)
		if err != nil {
			return fmt.Errorf("master: %w", err)
		}
		s.master = m
		return nil
	}
}

// Factory creates processor from its saved state. State is applied to
// the processor after it's created.
type Factory func(ctx *console.Context, s *console.State) (console.Processor, error)

// WithFactory registers factory for processors saved with provided state
// name. Processors without factory are skipped on restore.
func WithFactory(name string, f Factory) Option {
	return func(s *Session) error {
		s.factories[name] = f
		return nil
	}
}

// WithButler sets butler for disk streams.
func WithButler(b *diskstream.Butler) Option {
	return func(s *Session) error {
		s.butler = b
		return nil
	}
}

// New creates session. Master route is created unless provided with
// WithMaster option.
func New(ctx *console.Context, options ...Option) (*Session, error) {
	s := &Session{
		mutable: mutable.Mutable(),
		ctx:     ctx,
		logger:  ctx.Logger,
		tracks:  make(map[string]*track.Track),
		groups:  make(map[string]*route.Group),

		factories: make(map[string]Factory),
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	if s.butler == nil {
		s.butler = diskstream.NewButler(diskstream.WithLogger(s.logger))
	}
	s.meters = meter.NewHub(meter.WithLogger(s.logger))
	s.measure = metric.Meter(s, ctx.SampleRate())
	if s.master == nil {
		if err := WithMaster()(s); err != nil {
			return nil, err
		}
	}
	s.routes = append(s.routes, s.master)
	s.meters.Add(s.master.Meter())
	s.sort()
	return s, nil
}

// Context returns engine context of the session.
func (s *Session) Context() *console.Context {
	return s.ctx
}

// Butler returns butler of disk streams.
func (s *Session) Butler() *diskstream.Butler {
	return s.butler
}

// Meters returns meter hub of all routes.
func (s *Session) Meters() *meter.Hub {
	return s.meters
}

// Master returns master route.
func (s *Session) Master() *route.Route {
	return s.master
}

// AddRoute creates a new route.
func (s *Session) AddRoute(name string, options ...route.Option) (*route.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routeByName(name) != nil {
		return nil, fmt.Errorf("add route %s: %w", name, ErrDuplicateRoute)
	}
	r, err := route.New(s.ctx, name, append([]route.Option{route.WithLogger(s.logger)}, options...)...)
	if err != nil {
		return nil, fmt.Errorf("add route %s: %w", name, err)
	}
	s.added(r)
	return r, nil
}

// AddTrack creates a new track.
func (s *Session) AddTrack(name string, routeOptions []route.Option, options ...track.Option) (*track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routeByName(name) != nil {
		return nil, fmt.Errorf("add track %s: %w", name, ErrDuplicateRoute)
	}
	routeOptions = append([]route.Option{route.WithLogger(s.logger)}, routeOptions...)
	t, err := track.New(s.ctx, name, s.butler, routeOptions, options...)
	if err != nil {
		return nil, fmt.Errorf("add track %s: %w", name, err)
	}
	s.tracks[t.ID()] = t
	s.added(t.Route)
	return t, nil
}

// added must be called with mu held.
func (s *Session) added(r *route.Route) {
	s.routes = append(s.routes, r)
	s.meters.Add(r.Meter())
	s.resolveSends()
	s.sort()
	s.ctx.Bus.Emit(event.Message{Kind: event.RouteAdded, Source: r.ID(), Data: r.Name()})
}

// RemoveRoute destroys the route and removes it from the session. Sends
// of other routes targeting it become inert.
func (s *Session) RemoveRoute(r *route.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == s.master {
		return ErrMasterRoute
	}
	i := s.indexOf(r)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", r.Name(), ErrRouteNotFound)
	}
	var err error
	if t, ok := s.tracks[r.ID()]; ok {
		err = t.Destroy()
		delete(s.tracks, r.ID())
	} else {
		err = r.Destroy()
	}
	s.routes = append(s.routes[:i], s.routes[i+1:]...)
	s.meters.Remove(r.Meter().ID())
	s.sort()
	s.ctx.Bus.Emit(event.Message{Kind: event.RouteRemoved, Source: r.ID(), Data: r.Name()})
	return err
}

// Route returns route by id.
func (s *Session) Route(id string) (*route.Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.routeByID(id)
	return r, r != nil
}

// RouteByName returns route by name.
func (s *Session) RouteByName(name string) (*route.Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.routeByName(name)
	return r, r != nil
}

// Track returns track by route id.
func (s *Session) Track(id string) (*track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	return t, ok
}

// Routes returns routes in creation order.
func (s *Session) Routes() []*route.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*route.Route(nil), s.routes...)
}

// Tracks returns tracks in creation order.
func (s *Session) Tracks() []*track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tracks []*track.Track
	for _, r := range s.routes {
		if t, ok := s.tracks[r.ID()]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// NewGroup creates route group.
func (s *Session) NewGroup(name string, props route.Property) (*route.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[name]; ok {
		return nil, fmt.Errorf("new group %s: %w", name, ErrDuplicateGroup)
	}
	g := route.NewGroup(name, props)
	s.groups[name] = g
	return g, nil
}

// Group returns group by name.
func (s *Session) Group(name string) (*route.Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[name]
	return g, ok
}

// RemoveGroup removes all routes from the group and deletes it.
func (s *Session) RemoveGroup(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[name]
	if !ok {
		return
	}
	for _, r := range g.Routes() {
		g.Remove(r)
	}
	delete(s.groups, name)
}

// Run services disk streams and meters, and keeps the process order in
// sync with connection changes until context is done.
func (s *Session) Run(ctx context.Context) {
	sub := s.ctx.Bus.Subscribe(0,
		event.PortConnected,
		event.PortDisconnected,
		event.ProcessorsChanged,
		event.LatencyChanged,
	)
	defer sub.Close()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.butler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.meters.Run(ctx)
	}()
	defer wg.Wait()
	if err := s.Sort(); err != nil {
		s.logger.Warnf("sort routes: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.C():
			// collapse bursts of changes into a single sort
			for len(sub.C()) > 0 {
				<-sub.C()
			}
			s.logger.WithField("event", m.Kind.String()).Debug("sort routes")
			if err := s.Sort(); err != nil {
				s.logger.Warnf("sort routes: %v", err)
			}
		}
	}
}

// Destroy removes all routes. Session can't be used after that.
func (s *Session) Destroy() error {
	if !s.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	empty := []node{}
	s.order.Store(&empty)
	var errs console.Errors
	for i := len(s.routes) - 1; i >= 0; i-- {
		r := s.routes[i]
		if t, ok := s.tracks[r.ID()]; ok {
			errs = errs.Add(t.Destroy())
			continue
		}
		errs = errs.Add(r.Destroy())
	}
	s.routes = nil
	s.tracks = map[string]*track.Track{}
	return errs.Ret()
}

func (s *Session) routeByName(name string) *route.Route {
	for _, r := range s.routes {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

func (s *Session) routeByID(id string) *route.Route {
	for _, r := range s.routes {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

func (s *Session) indexOf(r *route.Route) int {
	for i := range s.routes {
		if s.routes[i] == r {
			return i
		}
	}
	return -1
}

// lookupReturn must be called with mu held.
func (s *Session) lookupReturn(id string) (*delivery.InternalReturn, bool) {
	r := s.routeByID(id)
	if r == nil || r.GoingAway() {
		return nil, false
	}
	return r.Return(), true
}
