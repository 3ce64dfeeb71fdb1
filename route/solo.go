package route

import (
	"github.com/dudk/console"
	"github.com/dudk/console/control"
	"github.com/dudk/console/delivery"
	"github.com/dudk/console/event"
	"github.com/dudk/console/signal"
)

func newTrimControl(ctx *console.Context, source string) *control.Control {
	return control.New("trim",
		control.WithRange(float64(signal.DBToCoefficient(-20)), float64(signal.DBToCoefficient(20)), 1),
		control.WithBus(ctx.Bus, source),
	)
}

// Soloed returns true if route is soloed by itself or by routes it feeds
// or is fed by.
func (r *Route) Soloed() bool {
	return r.selfSoloed.Load() || r.soloUpstream.Load() > 0 || r.soloDownstream.Load() > 0
}

// SelfSoloed returns true if solo was requested for this route.
func (r *Route) SelfSoloed() bool {
	return r.selfSoloed.Load()
}

// SoloIsolated returns true if route is never muted by other solos.
func (r *Route) SoloIsolated() bool {
	return r.soloIsolated.Load()
}

// SoloSafe returns true if solo state is locked.
func (r *Route) SoloSafe() bool {
	return r.soloSafe.Load()
}

// SetSolo changes self solo of the route and members of its group.
func (r *Route) SetSolo(v bool) {
	if g := r.group.Load(); g != nil && g.shares(SoloShared) {
		for _, m := range g.Routes() {
			m.setSolo(v)
		}
		return
	}
	r.setSolo(v)
}

func (r *Route) setSolo(v bool) {
	if r.soloSafe.Load() || r.goingAway.Load() {
		return
	}
	if r.selfSoloed.Swap(v) == v {
		return
	}
	if v {
		r.ctx.AdjustSoloed(1)
	} else {
		r.ctx.AdjustSoloed(-1)
	}
	r.ctx.Bus.Emit(event.Message{Kind: event.SoloChanged, Source: r.id, Value: boolValue(v)})
}

// ModSoloedByUpstream changes the number of soloed routes feeding this
// route. The count never goes below zero.
func (r *Route) ModSoloedByUpstream(delta int) {
	modCount(&r.soloUpstream, delta)
}

// ModSoloedByDownstream changes the number of soloed routes this route
// feeds. The count never goes below zero.
func (r *Route) ModSoloedByDownstream(delta int) {
	modCount(&r.soloDownstream, delta)
}

// SoloedBy returns counts of soloed upstream and downstream routes.
func (r *Route) SoloedBy() (upstream, downstream int) {
	return int(r.soloUpstream.Load()), int(r.soloDownstream.Load())
}

// SetSoloIsolate excludes route from muting by other solos.
func (r *Route) SetSoloIsolate(v bool) {
	if r.soloIsolated.Swap(v) != v {
		r.ctx.Bus.Emit(event.Message{Kind: event.SoloChanged, Source: r.id, Value: boolValue(r.SelfSoloed())})
	}
}

// SetSoloSafe locks solo state.
func (r *Route) SetSoloSafe(v bool) {
	r.soloSafe.Store(v)
}

// Muted returns true if route is muted.
func (r *Route) Muted() bool {
	return r.muted.Load()
}

// SetMute mutes route and members of its group.
func (r *Route) SetMute(v bool) {
	if g := r.group.Load(); g != nil && g.shares(MuteShared) {
		for _, m := range g.Routes() {
			m.setMute(v)
		}
		return
	}
	r.setMute(v)
}

func (r *Route) setMute(v bool) {
	if r.muted.Swap(v) != v {
		r.ctx.Bus.Emit(event.Message{Kind: event.MuteChanged, Source: r.id, Value: boolValue(v)})
	}
}

// MutePoints returns points where mute is applied.
func (r *Route) MutePoints() delivery.MutePoint {
	return delivery.MutePoint(r.mutePoints.Load())
}

// SetMutePoints changes points where mute is applied.
func (r *Route) SetMutePoints(mp delivery.MutePoint) {
	r.mutePoints.Store(uint32(mp))
}

// MutedAt returns true if deliveries at mp must be silent.
func (r *Route) MutedAt(mp delivery.MutePoint) bool {
	return r.muted.Load() && r.MutePoints()&mp != 0
}

// Gain returns fader gain coefficient.
func (r *Route) Gain() float64 {
	return r.amp.GainControl().Value()
}

// SetGain changes fader gain. If route belongs to a group sharing gain,
// change is applied to all members.
func (r *Route) SetGain(g float64) {
	if grp := r.group.Load(); grp != nil && grp.shares(GainShared) {
		grp.setGain(r, g)
		return
	}
	r.setGain(g)
}

// IncGain changes gain by provided amount of decibels.
func (r *Route) IncGain(db float64) {
	r.SetGain(r.Gain() * float64(signal.DBToCoefficient(db)))
}

func (r *Route) setGain(g float64) {
	if r.amp.GainControl().Set(g) {
		r.ctx.Bus.Emit(event.Message{Kind: event.GainChanged, Source: r.id, Value: r.Gain()})
	}
}

// TrimGain returns input trim coefficient.
func (r *Route) TrimGain() float64 {
	return r.trim.GainControl().Value()
}

// SetTrim changes input trim.
func (r *Route) SetTrim(g float64) {
	r.trim.GainControl().Set(g)
}

// Group returns the group of the route.
func (r *Route) Group() *Group {
	return r.group.Load()
}

func modCount(v interface {
	Add(int32) int32
	Store(int32)
}, delta int) {
	if v.Add(int32(delta)) < 0 {
		v.Store(0)
	}
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
