package session

import (
	"fmt"
	"sort"

	"github.com/dudk/console"
	"github.com/dudk/console/port"
	"github.com/dudk/console/route"
	"github.com/dudk/console/signal"
)

// State returns session properties, groups, routes and connections.
func (s *Session) State() *console.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := console.NewState("session").
		Set("sample-rate", s.ctx.SampleRate()).
		Set("position", s.Position()).
		Set("record-enabled", s.ctx.RecordEnabled()).
		Set("solo-mute-gain", s.ctx.SoloMuteGain()).
		Set("declick", s.ctx.DeclickFrames())

	groups := console.NewState("groups")
	names := make([]string, 0, len(s.groups))
	for name := range s.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g := s.groups[name]
		groups.Add(console.NewState("group").
			Set("name", name).
			Set("properties", int(g.Properties())).
			Set("relative", g.Relative()).
			Set("active", g.Active()))
	}

	routes := console.NewState("routes")
	connections := console.NewState("connections")
	for _, r := range s.routes {
		if t, ok := s.tracks[r.ID()]; ok {
			routes.Add(t.State())
		} else {
			routes.Add(r.State())
		}
		for _, in := range r.InputPorts() {
			for _, c := range in.Connections() {
				connections.Add(connection(c, in))
			}
		}
		for _, out := range r.OutputPorts() {
			for _, c := range out.Connections() {
				if c.Physical() {
					connections.Add(connection(out, c))
				}
			}
		}
	}
	return st.Add(groups, routes, connections)
}

func connection(src, dst *port.Port) *console.State {
	return console.NewState("connection").
		Set("source", src.Name()).
		Set("destination", dst.Name())
}

// SetState restores session. Missing routes are created, existing are
// matched by name. Connections that can't be made are logged.
func (s *Session) SetState(st *console.State) error {
	if st == nil {
		return console.ErrNilState
	}
	s.ctx.SetRecordEnabled(st.Bool("record-enabled", s.ctx.RecordEnabled()))
	s.ctx.SetSoloMuteGain(float32(st.Float("solo-mute-gain", float64(s.ctx.SoloMuteGain()))))
	s.ctx.SetDeclickFrames(st.Int("declick", s.ctx.DeclickFrames()))

	for _, gs := range st.Child("groups").ChildrenNamed("group") {
		name := gs.String("name", "")
		g, ok := s.Group(name)
		if !ok {
			var err error
			if g, err = s.NewGroup(name, route.Property(gs.Int("properties", int(route.AllShared)))); err != nil {
				return err
			}
		}
		g.SetRelative(gs.Bool("relative", true))
		g.SetActive(gs.Bool("active", true))
	}

	states := st.Child("routes")
	var restored []*route.Route
	for _, rs := range states.ChildrenNamed("route") {
		r, err := s.restoreRoute(rs)
		if err != nil {
			return err
		}
		restored = append(restored, r)
	}
	var errs console.Errors
	for i, rs := range states.ChildrenNamed("route") {
		errs = errs.Add(s.restoreRouteState(restored[i], rs))
	}

	for _, cs := range st.Child("connections").ChildrenNamed("connection") {
		src, dst := cs.String("source", ""), cs.String("destination", "")
		if err := s.ctx.Ports.Connect(src, dst); err != nil {
			s.logger.Warnf("restore connection: %v", err)
		}
	}
	errs = errs.Add(s.Sort())
	if position := st.Int("position", 0); position > 0 {
		errs = errs.Add(s.Locate(int64(position)))
	}
	return errs.Ret()
}

// restoreRoute finds route by name or creates it with saved ports.
func (s *Session) restoreRoute(rs *console.State) (*route.Route, error) {
	name := rs.String("name", "")
	if r, ok := s.RouteByName(name); ok {
		return r, nil
	}
	options := []route.Option{
		route.WithInputs(signal.Channels(rs.Int("inputs", 2), rs.Int("midi-inputs", 0))),
		route.WithOutputs(signal.AudioChannels(rs.Int("outputs", 2))),
	}
	if id := rs.String("id", ""); id != "" {
		options = append(options, route.WithID(id))
	}
	if rs.Child("track") != nil {
		t, err := s.AddTrack(name, options)
		if err != nil {
			return nil, err
		}
		return t.Route, nil
	}
	return s.AddRoute(name, options...)
}

// restoreRouteState creates processors missing in the route chain and
// restores the route state. Route puts them at saved positions.
func (s *Session) restoreRouteState(r *route.Route, rs *console.State) error {
	var states []*console.State
	if ps := rs.Child("processors"); ps != nil {
		states = ps.Children
	}
	fader := -1
	for i, ps := range states {
		if ps.String("id", "") == r.Amp().ID() || (ps.Name == "amp" && ps.String("name", "") == r.Amp().Name()) {
			fader = i
			break
		}
	}
	for i, ps := range states {
		if _, ok := r.Processor(ps.String("id", "")); ok {
			continue
		}
		p, err := s.newProcessor(r, ps)
		if err != nil {
			return fmt.Errorf("restore %s of %s: %w", ps.Name, r.Name(), err)
		}
		if p == nil {
			continue
		}
		if err := p.SetState(ps); err != nil {
			return fmt.Errorf("restore %s of %s: %w", p.Name(), r.Name(), err)
		}
		pos := route.PostFader()
		if i < fader {
			pos = route.PreFader()
		}
		if err := r.AddProcessor(p, pos); err != nil {
			return fmt.Errorf("restore %s of %s: %w", p.Name(), r.Name(), err)
		}
	}
	var err error
	if t, ok := s.Track(r.ID()); ok {
		err = t.SetState(rs)
	} else {
		err = r.SetState(rs)
	}
	if name := rs.String("group", ""); name != "" {
		if g, ok := s.Group(name); ok {
			g.Add(r)
		} else {
			s.logger.WithField("route", r.Name()).Warnf("group %q not found", name)
		}
	}
	return err
}

// newProcessor creates processor of saved kind. Fixed processors of the
// route and kinds without factory return nil.
func (s *Session) newProcessor(r *route.Route, ps *console.State) (console.Processor, error) {
	name := ps.String("name", "")
	switch ps.Name {
	case "internal-send":
		target, ok := s.Route(ps.String("target", ""))
		if !ok {
			s.logger.WithField("route", r.Name()).Warnf("send %q target not found", name)
			return nil, nil
		}
		return r.NewInternalSend(target), nil
	case "send":
		return r.NewSend(name), nil
	}
	if r.Fixed(ps) {
		return nil, nil
	}
	if f, ok := s.factories[ps.Name]; ok {
		return f(s.ctx, ps)
	}
	s.logger.WithField("route", r.Name()).Warnf("no factory for %s %q", ps.Name, name)
	return nil, nil
}
