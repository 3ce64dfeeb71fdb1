package delivery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/console"
	"github.com/dudk/console/control"
	"github.com/dudk/console/delivery"
	"github.com/dudk/console/signal"
)

type owner struct {
	muted      delivery.MutePoint
	isolated   bool
	soloed     bool
	monitoring bool
}

func (o *owner) ID() string                        { return "owner" }
func (o *owner) Name() string                      { return "owner" }
func (o *owner) MutedAt(p delivery.MutePoint) bool { return o.muted&p != 0 }
func (o *owner) SoloIsolated() bool                { return o.isolated }
func (o *owner) Soloed() bool                      { return o.soloed }
func (o *owner) Monitoring() bool                  { return o.monitoring }

func stereo(frames int, values ...signal.Sample) *signal.BufferSet {
	bufs := signal.NewBufferSet(signal.AudioChannels(2), frames)
	for i := 0; i < 2; i++ {
		copy(bufs.Audio(i).Data(frames), values)
	}
	return bufs
}

func configured(t *testing.T, d console.Processor, in signal.ChannelCount) signal.ChannelCount {
	t.Helper()
	out, ok := d.CanSupportIO(in)
	require.True(t, ok)
	require.NoError(t, d.ConfigureIO(in, out))
	return out
}

func TestTargetGain(t *testing.T) {
	var tests = []struct {
		description string
		role        delivery.Role
		placement   delivery.Placement
		owner       owner
		soloing     bool
		expected    float32
	}{
		{
			description: "unmuted",
			owner:       owner{monitoring: true},
			expected:    1,
		},
		{
			description: "not monitoring",
			owner:       owner{},
			expected:    0,
		},
		{
			description: "muted main",
			owner:       owner{monitoring: true, muted: delivery.MuteMain},
			expected:    0,
		},
		{
			description: "muted pre fader doesn't affect post fader send",
			role:        delivery.RoleSend,
			owner:       owner{monitoring: true, muted: delivery.MutePreFader},
			expected:    1,
		},
		{
			description: "muted pre fader send",
			role:        delivery.RoleSend,
			placement:   delivery.PreFader,
			owner:       owner{monitoring: true, muted: delivery.MutePreFader},
			expected:    0,
		},
		{
			description: "other route soloed",
			owner:       owner{monitoring: true},
			soloing:     true,
			expected:    0,
		},
		{
			description: "soloed",
			owner:       owner{monitoring: true, soloed: true},
			soloing:     true,
			expected:    1,
		},
		{
			description: "solo isolated",
			owner:       owner{monitoring: true, isolated: true},
			soloing:     true,
			expected:    1,
		},
		{
			description: "sends ignore solo",
			role:        delivery.RoleSend,
			owner:       owner{monitoring: true},
			soloing:     true,
			expected:    1,
		},
	}
	for _, c := range tests {
		ctx := console.NewContext(44100, 4)
		if c.soloing {
			ctx.AdjustSoloed(1)
		}
		o := c.owner
		d := delivery.New(ctx, &o, c.role)
		d.SetPlacement(c.placement)
		assert.Equal(t, c.expected, d.TargetGain(), c.description)
	}

	ctx := console.NewContext(44100, 4)
	ctx.AdjustSoloed(1)
	ctx.SetSoloMuteGain(0.25)
	d := delivery.New(ctx, &owner{monitoring: true}, delivery.RoleMain)
	assert.Equal(t, float32(0.25), d.TargetGain())
}

func TestSilenceOnZeroGain(t *testing.T) {
	ctx := console.NewContext(44100, 4)
	o := &owner{monitoring: true}
	d := delivery.New(ctx, o, delivery.RoleMain, delivery.WithPorts(signal.AudioChannels(2)))
	out := configured(t, d, signal.AudioChannels(2))
	require.NoError(t, d.EnsurePorts(out))
	require.Len(t, d.Ports(), 2)
	assert.Equal(t, "owner/main/audio_out 1", d.Ports()[0].Name())

	d.Run(stereo(4, 1, 1, 1, 1), console.Cycle{Frames: 4})
	assert.Equal(t, []signal.Sample{1, 1, 1, 1}, d.Ports()[1].Audio(4))

	// mute is ramped
	o.muted = delivery.MuteAll
	d.Run(stereo(4, 1, 1, 1, 1), console.Cycle{Frames: 4})
	assert.Equal(t, []signal.Sample{0.75, 0.5, 0.25, 0}, d.Ports()[0].Audio(4))

	// stale port data is cleared
	for _, p := range d.Ports() {
		copy(p.Audio(4), []signal.Sample{9, 9, 9, 9})
	}
	d.Run(stereo(4, 1, 1, 1, 1), console.Cycle{Frames: 4})
	for _, p := range d.Ports() {
		assert.Equal(t, []signal.Sample{0, 0, 0, 0}, p.Audio(4))
	}

	require.NoError(t, d.Release())
	assert.Equal(t, 0, ctx.Ports.Len())
}

func TestPendingDeactivation(t *testing.T) {
	ctx := console.NewContext(44100, 2)
	d := delivery.New(ctx, nil, delivery.RoleMain)
	configured(t, d, signal.AudioChannels(2))
	require.NoError(t, d.EnsurePorts(signal.AudioChannels(2)))

	d.Deactivate()
	assert.True(t, d.Active())
	assert.True(t, d.Pending())
	d.Run(stereo(2, 1, 1), console.Cycle{Frames: 2})
	assert.Equal(t, []signal.Sample{0.5, 0}, d.Ports()[0].Audio(2))
	assert.False(t, d.Active())
	assert.False(t, d.Pending())

	d.Activate()
	assert.True(t, d.Active())
}

func TestPanning(t *testing.T) {
	ctx := console.NewContext(44100, 2)
	d := delivery.New(ctx, nil, delivery.RoleMain, delivery.WithPorts(signal.AudioChannels(2)))
	out := configured(t, d, signal.AudioChannels(1))
	assert.Equal(t, signal.AudioChannels(2), out)
	require.NoError(t, d.EnsurePorts(out))
	assert.Equal(t, 1, d.Panner().Inputs())

	bufs := signal.NewBufferSet(signal.AudioChannels(2), 2)
	bufs.SetCount(signal.AudioChannels(1))
	copy(bufs.Audio(0).Data(2), []signal.Sample{1, 1})
	d.Run(bufs, console.Cycle{Frames: 2})
	for _, p := range d.Ports() {
		assert.InDeltaSlice(t, []float64{0.7071, 0.7071}, []float64{float64(p.Audio(2)[0]), float64(p.Audio(2)[1])}, 1e-4)
	}

	s := d.State()
	assert.Equal(t, "main", s.String("role", ""))
	require.NotNil(t, s.Child("panner"))
}

func TestSendDoesNotMutateBuffers(t *testing.T) {
	ctx := console.NewContext(44100, 4)
	s := delivery.NewSend(ctx, &owner{monitoring: true}, delivery.WithName("fx"))
	configured(t, s, signal.AudioChannels(2))
	require.Len(t, s.Ports(), 2)

	s.Amp().SetGain(0.3)
	s.Amp().GainControl().Edit(func(l *control.List) {
		l.Add(0, 0.1)
		l.Add(2, 1.5)
	})
	s.Amp().GainControl().SetAutoState(control.Play)

	bufs := stereo(4, 0.5, -0.25, 1, 0.125)
	before := append([]signal.Sample(nil), bufs.Audio(0).Data(4)...)
	s.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, before, bufs.Audio(0).Data(4))
	assert.Equal(t, before, bufs.Audio(1).Data(4))
	assert.InDelta(t, 0.05, s.Ports()[0].Audio(4)[0], 1e-6)
	assert.InDelta(t, 1.5, s.Meter().Peak(0), 1e-6)
}

func TestInternalSend(t *testing.T) {
	ctx := console.NewContext(44100, 4)
	r := delivery.NewReturn(ctx)
	configured(t, r, signal.AudioChannels(2))
	returns := map[string]*delivery.InternalReturn{"bus": r}
	lookup := func(id string) (*delivery.InternalReturn, bool) {
		ret, ok := returns[id]
		return ret, ok
	}

	s := delivery.NewInternalSend(ctx, &owner{monitoring: true}, "bus")
	assert.True(t, s.Inert())
	configured(t, s, signal.AudioChannels(1))
	require.True(t, s.Resolve(lookup))
	assert.Equal(t, 1, r.Sends())
	assert.Empty(t, s.Ports())

	mono := signal.NewBufferSet(signal.AudioChannels(1), 4)
	copy(mono.Audio(0).Data(4), []signal.Sample{1, 1, 1, 1})
	s.Run(mono, console.Cycle{Frames: 4, Index: 1})
	assert.Equal(t, []signal.Sample{1, 1, 1, 1}, mono.Audio(0).Data(4))

	main := stereo(4, 1, 1, 1, 1)
	r.Run(main, console.Cycle{Frames: 4, Index: 1})
	assert.InDelta(t, 1.7071, main.Audio(0).Data(4)[0], 1e-4)
	assert.InDelta(t, 1.7071, main.Audio(1).Data(4)[3], 1e-4)

	// accumulator of the previous cycle is not mixed again
	main = stereo(4, 1, 1, 1, 1)
	r.Run(main, console.Cycle{Frames: 4, Index: 2})
	assert.Equal(t, []signal.Sample{1, 1, 1, 1}, main.Audio(0).Data(4))

	// target goes away
	r.Drop()
	delete(returns, "bus")
	assert.True(t, s.Inert())
	assert.Equal(t, 0, r.Sends())
	assert.NotPanics(t, func() {
		s.Run(mono, console.Cycle{Frames: 4, Index: 3})
	})
	assert.False(t, s.Resolve(lookup))
	assert.Equal(t, []signal.Sample{1, 1, 1, 1}, mono.Audio(0).Data(4))

	st := s.State()
	assert.Equal(t, "bus", st.String("target", ""))
	assert.NotNil(t, st.Child("amp"))
}
