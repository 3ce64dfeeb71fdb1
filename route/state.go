package route

import (
	"fmt"

	"github.com/dudk/console"
	"github.com/dudk/console/delivery"
	"github.com/dudk/console/meter"
)

// State returns route properties with states of all processors.
func (r *Route) State() *console.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := console.NewState("route").
		Set("id", r.id).
		Set("name", r.name).
		Set("active", r.Active()).
		Set("inputs", r.input.Audio()).
		Set("midi-inputs", r.input.MIDI()).
		Set("outputs", r.main.Requested().Audio()).
		Set("muted", r.Muted()).
		Set("mute-points", uint32(r.MutePoints())).
		Set("soloed", r.SelfSoloed()).
		Set("solo-isolated", r.SoloIsolated()).
		Set("solo-safe", r.SoloSafe()).
		Set("meter-point", r.MeterPoint().String()).
		Set("phase-invert", r.PhaseInvert()).
		Set("denormal-protection", r.denormal.Load())
	if g := r.group.Load(); g != nil {
		s.Set("group", g.Name())
	}
	processors := console.NewState("processors")
	for _, p := range r.chain {
		processors.Add(p.State())
	}
	return s.Add(processors)
}

// SetState restores route properties and states of processors in the
// chain. Processors are matched by id, fixed processors also by name.
// Unknown processors are skipped with warning. Matched processors are
// moved to their saved positions and deliveries take placement from
// there.
func (r *Route) SetState(s *console.State) error {
	if s == nil {
		return console.ErrNilState
	}
	r.SetActive(s.Bool("active", r.Active()))
	r.SetMute(s.Bool("muted", r.Muted()))
	r.SetMutePoints(delivery.MutePoint(s.Int("mute-points", int(r.MutePoints()))))
	r.SetSoloIsolate(s.Bool("solo-isolated", r.SoloIsolated()))
	r.SetSoloSafe(false)
	r.setSolo(s.Bool("soloed", r.SelfSoloed()))
	r.SetSoloSafe(s.Bool("solo-safe", false))
	r.SetPhaseInvert(uint64(s.Int("phase-invert", int(r.PhaseInvert()))))
	r.SetDenormalProtection(s.Bool("denormal-protection", false))
	if name, ok := s.Get("meter-point"); ok {
		mp, ok := meter.ParsePoint(name)
		if !ok {
			r.logger.Warnf("unknown meter point %q", name)
		}
		if err := r.SetMeterPoint(mp); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	children := s.Child("processors")
	if children == nil {
		return nil
	}
	var errs console.Errors
	for _, ps := range children.Children {
		p := r.match(ps)
		if p == nil {
			r.logger.Warnf("processor %s %q not found", ps.String("id", ""), ps.String("name", ""))
			continue
		}
		if err := p.SetState(ps); err != nil {
			errs = errs.Add(fmt.Errorf("restore %s: %w", p.Name(), err))
		}
	}
	return errs.Add(r.restoreOrder(children.Children)).Ret()
}

// restoreOrder arranges visible processors in saved order. Processors
// missing in the saved chain keep their relative order after the saved
// ones. Must be called with write lock held.
func (r *Route) restoreOrder(states []*console.State) error {
	current := visible(r.chain)
	order := make([]console.Processor, 0, len(current))
	for _, ps := range states {
		if p := r.match(ps); p != nil && p.Visible() && indexOf(order, p) < 0 {
			order = append(order, p)
		}
	}
	for _, p := range current {
		if indexOf(order, p) < 0 {
			order = append(order, p)
		}
	}
	chain := make([]console.Processor, len(r.chain))
	same := true
	k := 0
	for i, p := range r.chain {
		if p.Visible() {
			p = order[k]
			k++
		}
		chain[i] = p
		same = same && chain[i] == r.chain[i]
	}
	if same {
		r.updatePlacements()
		return nil
	}
	if err := r.apply(r.input, chain); err != nil {
		return fmt.Errorf("restore order of %s: %w", r.name, err)
	}
	if r.meterMoved() {
		r.meterPoint.Store(int32(meter.Custom))
	}
	r.chainChanged()
	return nil
}

// Fixed returns true if the state describes one of the processors every
// route owns.
func (r *Route) Fixed(s *console.State) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.match(s)
	return p != nil && r.fixed(p)
}

func (r *Route) match(s *console.State) console.Processor {
	id := s.String("id", "")
	for _, p := range r.chain {
		if p.ID() == id {
			return p
		}
	}
	name := s.String("name", "")
	for _, p := range r.chain {
		if r.fixed(p) && p.Name() == name {
			return p
		}
	}
	return nil
}
