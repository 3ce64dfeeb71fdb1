package route_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/console"
	"github.com/dudk/console/delivery"
	"github.com/dudk/console/event"
	"github.com/dudk/console/internal/mock"
	"github.com/dudk/console/meter"
	"github.com/dudk/console/panner"
	"github.com/dudk/console/port"
	"github.com/dudk/console/route"
	"github.com/dudk/console/signal"
)

const (
	sampleRate = 44100
	frames     = 8
)

var stereo = signal.AudioChannels(2)

func newRoute(t *testing.T, ctx *console.Context, name string, options ...route.Option) *route.Route {
	t.Helper()
	r, err := route.New(ctx, name, options...)
	require.NoError(t, err)
	return r
}

// source registers output ports and connects them to route inputs.
func source(t *testing.T, ctx *console.Context, r *route.Route) []*port.Port {
	t.Helper()
	var outs []*port.Port
	for i, in := range r.InputPorts() {
		out, err := ctx.Ports.Register(r.Name()+"/src "+string(rune('1'+i)), signal.Audio, port.Output, 0)
		require.NoError(t, err)
		require.NoError(t, ctx.Ports.Connect(out.Name(), in.Name()))
		outs = append(outs, out)
	}
	return outs
}

// cycle runs a single cycle with provided input samples.
func cycle(ctx *console.Context, src []*port.Port, input [][]signal.Sample, routes ...*route.Route) {
	ctx.Ports.CycleStart(frames)
	for i, p := range src {
		if i < len(input) {
			copy(p.Audio(frames), input[i])
		}
	}
	c := console.Cycle{Frames: frames, Index: ctx.Ports.Cycle()}
	for _, r := range routes {
		r.Process(c)
	}
}

func output(r *route.Route) [][]signal.Sample {
	var out [][]signal.Sample
	for _, p := range r.OutputPorts() {
		out = append(out, append([]signal.Sample(nil), p.Audio(frames)...))
	}
	return out
}

func impulse(peak signal.Sample) []signal.Sample {
	s := make([]signal.Sample, frames)
	s[0] = peak
	return s
}

type config struct {
	name    string
	in, out signal.ChannelCount
}

func configs(r *route.Route) []config {
	var result []config
	for _, p := range r.Processors() {
		result = append(result, config{name: p.Name(), in: p.Input(), out: p.Output()})
	}
	return result
}

func assertNegotiated(t *testing.T, r *route.Route) {
	t.Helper()
	procs := r.Processors()
	require.NotEmpty(t, procs)
	assert.Equal(t, r.Input(), procs[0].Input())
	for i := 1; i < len(procs); i++ {
		out, ok := procs[i].CanSupportIO(procs[i-1].Output())
		assert.True(t, ok, "stage %d", i)
		assert.Equal(t, procs[i-1].Output(), procs[i].Input(), "stage %d", i)
		assert.Equal(t, out, procs[i].Output(), "stage %d", i)
	}
	last := procs[len(procs)-1].Output()
	assert.Equal(t, last.Audio(), len(r.OutputPorts()))
}

func TestNegotiation(t *testing.T) {
	var tests = []struct {
		description string
		inputs      signal.ChannelCount
		outputs     signal.ChannelCount
		plugins     []*mock.Processor
		expected    signal.ChannelCount
	}{
		{
			description: "stereo passthrough",
			inputs:      stereo,
			outputs:     stereo,
			expected:    stereo,
		},
		{
			description: "mono panned to stereo",
			inputs:      signal.AudioChannels(1),
			outputs:     stereo,
			expected:    stereo,
		},
		{
			description: "upmix plugin",
			inputs:      signal.AudioChannels(1),
			outputs:     signal.AudioChannels(4),
			plugins: []*mock.Processor{
				mock.Plugin("upmix", signal.AudioChannels(1), stereo),
				mock.Plugin("stereo", stereo, stereo),
			},
			expected: signal.AudioChannels(4),
		},
		{
			description: "midi synth",
			inputs:      signal.Channels(0, 1),
			outputs:     stereo,
			plugins: []*mock.Processor{
				mock.Plugin("synth", signal.Channels(0, 1), stereo),
			},
			expected: stereo,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			ctx := console.NewContext(sampleRate, frames)
			r := newRoute(t, ctx, "r", route.WithInputs(test.inputs), route.WithOutputs(test.outputs))
			for _, p := range test.plugins {
				require.NoError(t, r.AddProcessor(p, route.PreFader()))
			}
			assertNegotiated(t, r)
			assert.Equal(t, test.expected, r.Output())
			assert.Len(t, r.InputPorts(), test.inputs.Audio())
			assert.Len(t, r.MIDIInputPorts(), test.inputs.MIDI())
		})
	}
}

func TestInsertRollback(t *testing.T) {
	configureErr := errors.New("configure")
	var tests = []struct {
		description string
		plugin      func() *mock.Processor
		position    route.Position
		negotiation bool
		index       int
		stage       string
	}{
		{
			description: "incompatible input",
			plugin: func() *mock.Processor {
				return mock.Plugin("mono", signal.AudioChannels(1), signal.AudioChannels(1))
			},
			position:    route.PostFader(),
			negotiation: true,
			index:       5,
			stage:       "mono",
		},
		{
			description: "downstream rejects output",
			plugin: func() *mock.Processor {
				return mock.Plugin("midi", stereo, signal.Channels(0, 1))
			},
			position:    route.PreFader(),
			negotiation: true,
			index:       5,
			stage:       "eq",
		},
		{
			description: "configure failure",
			plugin: func() *mock.Processor {
				m := mock.New("broken")
				m.ErrorOnConfigure = configureErr
				return m
			},
			position: route.PostFader(),
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			ctx := console.NewContext(sampleRate, frames)
			r := newRoute(t, ctx, "r")
			require.NoError(t, r.AddProcessor(mock.Plugin("eq", stereo, stereo), route.PostFader()))
			before := configs(r)
			events := ctx.Bus.Subscribe(8, event.ProcessorsChanged)
			defer events.Close()

			p := test.plugin()
			err := r.AddProcessor(p, test.position)
			require.Error(t, err)
			var negotiation *console.NegotiationError
			if test.negotiation {
				require.True(t, errors.As(err, &negotiation))
				assert.Equal(t, test.index, negotiation.Index)
				assert.Equal(t, test.stage, negotiation.Processor)
				assert.False(t, p.Released)
			} else {
				assert.False(t, errors.As(err, &negotiation))
				assert.True(t, errors.Is(err, configureErr))
				assert.True(t, p.Released)
			}
			assert.Equal(t, before, configs(r))
			assert.Empty(t, events.C())
			assertNegotiated(t, r)
		})
	}
}

func TestRemove(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	r := newRoute(t, ctx, "r")
	for _, p := range []console.Processor{r.Amp(), r.Meter(), r.Main(), r.Trim(), r.Return()} {
		assert.True(t, errors.Is(r.RemoveProcessor(p), console.ErrFixedProcessor), p.Name())
	}
	plugin := mock.Plugin("plugin", stereo, stereo)
	assert.True(t, errors.Is(r.RemoveProcessor(plugin), console.ErrProcessorNotFound))

	require.NoError(t, r.AddProcessor(plugin, route.PreFader()))
	assert.True(t, errors.Is(r.AddProcessor(plugin, route.PostFader()), console.ErrDuplicateProcessor))
	require.NoError(t, r.RemoveProcessor(plugin))
	assert.True(t, plugin.Released)
	assert.False(t, plugin.Active())
	assert.Len(t, r.Processors(), 6)
	assertNegotiated(t, r)
}

func TestPositions(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	r := newRoute(t, ctx, "r")
	pre, post := mock.New("pre"), mock.New("post")
	require.NoError(t, r.AddProcessor(pre, route.PreFader()))
	require.NoError(t, r.AddProcessor(post, route.PostFader()))
	first := mock.New("first")
	require.NoError(t, r.AddProcessor(first, route.Before(r.Return())))
	after := mock.New("after")
	require.NoError(t, r.AddProcessor(after, route.After(r.Main())))
	assert.True(t, errors.Is(r.AddProcessor(mock.New("lost"), route.After(mock.New("missing"))), console.ErrProcessorNotFound))

	var names []string
	for _, p := range r.Processors() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"return", "first", "trim", "pre", "amp", "meter", "post", "after", "align", "main"}, names)

	send := r.NewSend("aux")
	require.NoError(t, r.AddProcessor(send, route.PreFader()))
	assert.Equal(t, delivery.PreFader, send.Placement())
	require.NoError(t, r.ReorderProcessors([]console.Processor{first, pre, r.Amp(), send, r.Meter(), post, after}))
	assert.Equal(t, delivery.PostFader, send.Placement())
}

func TestReorder(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	r := newRoute(t, ctx, "r")
	down := mock.Plugin("down", stereo, signal.AudioChannels(1))
	up := mock.Plugin("up", signal.AudioChannels(1), stereo)
	require.NoError(t, r.AddProcessor(down, route.PostFader()))
	require.NoError(t, r.AddProcessor(up, route.PostFader()))

	events := ctx.Bus.Subscribe(8, event.ProcessorsChanged)
	defer events.Close()
	before := configs(r)
	configured := down.Configured

	// same order
	require.NoError(t, r.ReorderProcessors(r.VisibleProcessors()))
	assert.Equal(t, before, configs(r))
	assert.Equal(t, configured, down.Configured)
	assert.Empty(t, events.C())

	// invalid orders
	assert.True(t, errors.Is(r.ReorderProcessors([]console.Processor{down, up}), console.ErrInvalidOrder))
	assert.True(t, errors.Is(r.ReorderProcessors([]console.Processor{r.Amp(), r.Meter(), down, down}), console.ErrInvalidOrder))
	assert.True(t, errors.Is(r.ReorderProcessors([]console.Processor{r.Amp(), r.Meter(), down, r.Main()}), console.ErrInvalidOrder))

	// up can't accept stereo
	err := r.ReorderProcessors([]console.Processor{r.Amp(), r.Meter(), up, down})
	var negotiation *console.NegotiationError
	require.True(t, errors.As(err, &negotiation))
	assert.Equal(t, before, configs(r))
	assert.Empty(t, events.C())

	// meter moved before amp
	require.NoError(t, r.ReorderProcessors([]console.Processor{r.Meter(), r.Amp(), down, up}))
	assert.Equal(t, meter.Custom, r.MeterPoint())
	assert.Equal(t, event.ProcessorsChanged, (<-events.C()).Kind)
	assertNegotiated(t, r)
}

func TestGainScenario(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	r := newRoute(t, ctx, "r", route.WithInputs(stereo), route.WithOutputs(stereo))
	require.NoError(t, r.SetMeterPoint(meter.PreFader))
	plugin := mock.Plugin("plugin", stereo, stereo)
	require.NoError(t, r.AddProcessor(plugin, route.PostFader()))

	var visible []string
	for _, p := range r.VisibleProcessors() {
		visible = append(visible, p.Name())
	}
	assert.Equal(t, []string{"meter", "amp", "plugin"}, visible)
	assertNegotiated(t, r)

	src := source(t, ctx, r)
	r.SetGain(0.5)

	in := [][]signal.Sample{impulse(1), impulse(-0.8)}
	cycle(ctx, src, in, r)
	out := output(r)
	require.Len(t, out, 2)
	for i := range in {
		for j := range in[i] {
			assert.InDelta(t, 0.5*in[i][j], out[i][j], 1e-6)
		}
	}
	assert.InDelta(t, 1, r.Meter().Peak(0), 1e-6)
	assert.InDelta(t, 0.8, r.Meter().Peak(1), 1e-6)
	cycles, processed := plugin.Count()
	assert.Equal(t, 1, cycles)
	assert.Equal(t, frames, processed)

	// later changes are ramped
	r.SetGain(1)
	cycle(ctx, src, [][]signal.Sample{{1, 1, 1, 1, 1, 1, 1, 1}}, r)
	out = output(r)
	assert.InDelta(t, 0.5625, out[0][0], 1e-6)
	assert.InDelta(t, 1, out[0][frames-1], 1e-6)
}

func TestBalance(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	r := newRoute(t, ctx, "r", route.WithInputs(stereo), route.WithOutputs(stereo), route.WithPanner(panner.Balance))
	pan := r.Main().Panner()
	assert.Equal(t, 2, pan.Inputs())
	assert.Equal(t, 2, pan.Outputs())
	require.NotNil(t, pan.Position(0))

	src := source(t, ctx, r)
	ones := make([]signal.Sample, frames)
	for i := range ones {
		ones[i] = 1
	}
	var tests = []struct {
		position    float64
		left, right float64
	}{
		{position: 0.5, left: 1, right: 1},
		{position: 0.75, left: 0.5, right: 1},
		{position: 0, left: 1, right: 0},
	}
	for _, test := range tests {
		pan.Position(0).Set(test.position)
		// the first cycle ramps to new position
		cycle(ctx, src, [][]signal.Sample{ones, ones}, r)
		cycle(ctx, src, [][]signal.Sample{ones, ones}, r)
		out := output(r)
		assert.InDelta(t, test.left, out[0][0], 1e-6, "position %v", test.position)
		assert.InDelta(t, test.right, out[1][0], 1e-6, "position %v", test.position)
	}
}

func TestFeedsWhileResizing(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	a, b := newRoute(t, ctx, "a"), newRoute(t, ctx, "b")
	require.NoError(t, ctx.Ports.Connect(a.OutputPorts()[0].Name(), b.InputPorts()[0].Name()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			assert.NoError(t, b.SetInputs(signal.AudioChannels(2+i%2)))
		}
	}()
	for i := 0; i < 100; i++ {
		assert.True(t, a.Feeds(b))
	}
	wg.Wait()
}

func TestInternalSend(t *testing.T) {
	t.Run("delivers to target", func(t *testing.T) {
		ctx := console.NewContext(sampleRate, frames)
		a, b := newRoute(t, ctx, "a"), newRoute(t, ctx, "b")
		send := a.NewInternalSend(b)
		require.NoError(t, a.AddProcessor(send, route.PostFader()))
		assert.True(t, send.Inert())
		assert.Equal(t, 0, a.ResolveSends(lookup(a, b)))
		assert.Equal(t, 1, b.Return().Sends())
		assert.True(t, a.Feeds(b))
		assert.False(t, b.Feeds(a))

		src := source(t, ctx, a)
		cycle(ctx, src, [][]signal.Sample{impulse(1), impulse(1)}, a, b)
		assert.Equal(t, impulse(1), output(a)[0])
		assert.Equal(t, impulse(1), output(b)[0])
	})
	t.Run("target destroyed", func(t *testing.T) {
		ctx := console.NewContext(sampleRate, frames)
		a, b := newRoute(t, ctx, "a"), newRoute(t, ctx, "b")
		send := a.NewInternalSend(b)
		require.NoError(t, a.AddProcessor(send, route.PostFader()))
		require.Equal(t, 0, a.ResolveSends(lookup(a, b)))
		require.NoError(t, b.Destroy())
		assert.True(t, b.GoingAway())
		assert.True(t, send.Inert())

		src := source(t, ctx, a)
		in := [][]signal.Sample{impulse(1), impulse(0.5)}
		cycle(ctx, src, in, a, b)
		assert.Equal(t, in, output(a))
	})
	t.Run("added after destroy", func(t *testing.T) {
		ctx := console.NewContext(sampleRate, frames)
		a, b := newRoute(t, ctx, "a"), newRoute(t, ctx, "b")
		require.NoError(t, b.Destroy())
		send := a.NewInternalSend(b)
		require.NoError(t, a.AddProcessor(send, route.PreFader()))
		assert.Equal(t, 1, a.ResolveSends(lookup(a, b)))
		assert.True(t, send.Inert())

		src := source(t, ctx, a)
		in := [][]signal.Sample{impulse(1), impulse(0.5)}
		cycle(ctx, src, in, a)
		assert.Equal(t, in, output(a))
	})
}

func lookup(routes ...*route.Route) func(string) (*delivery.InternalReturn, bool) {
	return func(id string) (*delivery.InternalReturn, bool) {
		for _, r := range routes {
			if r.ID() == id {
				return r.Return(), true
			}
		}
		return nil, false
	}
}

func TestSoloMute(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	events := ctx.Bus.Subscribe(16, event.SoloChanged, event.MuteChanged)
	defer events.Close()
	a, b, c := newRoute(t, ctx, "a"), newRoute(t, ctx, "b"), newRoute(t, ctx, "c")

	a.SetSolo(true)
	a.SetSolo(true)
	assert.Equal(t, 1, ctx.SoloedRoutes())
	assert.Equal(t, event.SoloChanged, (<-events.C()).Kind)
	assert.Empty(t, events.C())
	assert.Equal(t, float32(1), a.Main().TargetGain())
	assert.Equal(t, float32(0), b.Main().TargetGain())

	c.SetSoloIsolate(true)
	assert.Equal(t, float32(1), c.Main().TargetGain())
	<-events.C()

	b.ModSoloedByDownstream(1)
	assert.True(t, b.Soloed())
	assert.Equal(t, float32(1), b.Main().TargetGain())
	b.ModSoloedByDownstream(-2)
	assert.Equal(t, 0, func() int { _, d := b.SoloedBy(); return d }())

	b.SetSoloSafe(true)
	b.SetSolo(true)
	assert.False(t, b.SelfSoloed())

	a.SetSolo(false)
	assert.False(t, ctx.Soloing())
	<-events.C()

	send := b.NewSend("aux")
	require.NoError(t, b.AddProcessor(send, route.PreFader()))
	b.SetMutePoints(delivery.MuteMain)
	b.SetMute(true)
	assert.Equal(t, event.MuteChanged, (<-events.C()).Kind)
	assert.Equal(t, float32(0), b.Main().TargetGain())
	assert.Equal(t, float32(1), send.TargetGain())
	b.SetMutePoints(delivery.MuteAll)
	assert.Equal(t, float32(0), send.TargetGain())

	b.SetMonitoring(false)
	b.SetMute(false)
	assert.Equal(t, float32(0), b.Main().TargetGain())
}

func TestGroup(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	a, b := newRoute(t, ctx, "a"), newRoute(t, ctx, "b")
	g := route.NewGroup("drums", route.AllShared)
	g.Add(a)
	g.Add(b)
	g.Add(b)
	assert.Len(t, g.Routes(), 2)
	assert.Equal(t, g, a.Group())

	b.SetGain(0.5)
	assert.InDelta(t, 0.5, a.Gain(), 1e-9)
	assert.InDelta(t, 0.5, b.Gain(), 1e-9)

	// relative change is limited by the loudest member
	g.SetActive(false)
	a.SetGain(0.25)
	b.SetGain(1.5)
	g.SetActive(true)
	a.SetGain(1)
	_, upper := b.Amp().GainControl().Range()
	assert.InDelta(t, upper, b.Gain(), 1e-6)
	assert.InDelta(t, 0.25*upper/1.5, a.Gain(), 1e-6)

	g.SetRelative(false)
	a.SetGain(0.8)
	assert.InDelta(t, 0.8, b.Gain(), 1e-9)

	a.IncGain(-6)
	assert.InDelta(t, 0.8*float64(signal.DBToCoefficient(-6)), b.Gain(), 1e-6)

	a.SetMute(true)
	assert.True(t, b.Muted())
	b.SetSolo(true)
	assert.True(t, a.SelfSoloed())
	assert.Equal(t, 2, ctx.SoloedRoutes())

	g.SetActive(false)
	a.SetMute(false)
	assert.True(t, b.Muted())

	require.NoError(t, b.Destroy())
	assert.Len(t, g.Routes(), 1)
	assert.Equal(t, 1, ctx.SoloedRoutes())
}

func TestLatency(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	events := ctx.Bus.Subscribe(4, event.LatencyChanged)
	defer events.Close()
	r := newRoute(t, ctx, "r")
	plugin := mock.New("lookahead")
	plugin.Delay = 64
	require.NoError(t, r.AddProcessor(plugin, route.PreFader()))
	assert.Equal(t, 64, r.Latency())
	assert.Equal(t, float64(64), (<-events.C()).Value)

	r.SetAlignment(3)
	assert.Equal(t, 3, r.Alignment())
	src := source(t, ctx, r)
	cycle(ctx, src, [][]signal.Sample{impulse(1), impulse(1)}, r)
	expected := make([]signal.Sample, frames)
	expected[3] = 1
	assert.Equal(t, expected, output(r)[0])

	r.Reset()
	assert.True(t, plugin.Resetted)
	require.NoError(t, r.RemoveProcessor(plugin))
	assert.Equal(t, 0, r.Latency())
}

func TestConditioning(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	r := newRoute(t, ctx, "r")
	r.SetPhaseInvert(1 << 1)
	r.SetDenormalProtection(true)
	src := source(t, ctx, r)
	cycle(ctx, src, [][]signal.Sample{impulse(0.5), impulse(0.5)}, r)
	out := output(r)
	for i, expected := range [][]signal.Sample{impulse(0.5), impulse(-0.5)} {
		assert.InDeltaSlice(t, expected, out[i], 1e-6)
	}

	r.SetActive(false)
	cycle(ctx, src, [][]signal.Sample{impulse(0.5), impulse(0.5)}, r)
	assert.Equal(t, make([]signal.Sample, frames), output(r)[0])
}

func TestIO(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	r := newRoute(t, ctx, "r")
	plugin := mock.Plugin("plugin", stereo, stereo)
	require.NoError(t, r.AddProcessor(plugin, route.PreFader()))

	var negotiation *console.NegotiationError
	require.True(t, errors.As(r.SetInputs(signal.AudioChannels(1)), &negotiation))
	assert.Equal(t, stereo, r.Input())
	assert.Len(t, r.InputPorts(), 2)

	require.NoError(t, r.SetOutputs(signal.AudioChannels(4)))
	assert.Len(t, r.OutputPorts(), 4)
	assertNegotiated(t, r)
	require.NoError(t, r.RemoveProcessor(plugin))
	require.NoError(t, r.SetInputs(signal.AudioChannels(1)))
	assert.Len(t, r.InputPorts(), 1)
	assertNegotiated(t, r)
}

func TestDestroy(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	events := ctx.Bus.Subscribe(4, event.RouteGoingAway)
	defer events.Close()
	r := newRoute(t, ctx, "r")
	plugin := mock.New("plugin")
	require.NoError(t, r.AddProcessor(plugin, route.PreFader()))
	r.SetSolo(true)
	require.NotZero(t, ctx.Ports.Len())

	require.NoError(t, r.Destroy())
	require.NoError(t, r.Destroy())
	assert.Equal(t, r.ID(), (<-events.C()).Source)
	assert.True(t, plugin.Released)
	assert.False(t, plugin.Active())
	assert.False(t, r.Main().Active())
	assert.Equal(t, 0, ctx.Ports.Len())
	assert.False(t, ctx.Soloing())
	assert.True(t, errors.Is(r.AddProcessor(mock.New("late"), route.PreFader()), route.ErrGoingAway))
	assert.True(t, r.Process(console.Cycle{Frames: frames}))
}

func TestState(t *testing.T) {
	ctx := console.NewContext(sampleRate, frames)
	a := newRoute(t, ctx, "a")
	a.SetGain(0.5)
	a.SetMute(true)
	a.SetPhaseInvert(3)
	require.NoError(t, a.SetMeterPoint(meter.Input))

	data, err := console.MarshalState(a.State())
	require.NoError(t, err)
	s, err := console.UnmarshalState(data)
	require.NoError(t, err)

	b := newRoute(t, ctx, "b")
	unknown := console.NewState("mock").Set("id", "missing").Set("name", "missing")
	s.Child("processors").Add(unknown)
	require.NoError(t, b.SetState(s))
	assert.InDelta(t, 0.5, b.Gain(), 1e-9)
	assert.True(t, b.Muted())
	assert.Equal(t, uint64(3), b.PhaseInvert())
	assert.Equal(t, meter.Input, b.MeterPoint())
	assert.Equal(t, a.Amp().ID(), b.Amp().ID())

	diff, err := console.Diff(a.State().Child("processors"), b.State().Child("processors"))
	require.NoError(t, err)
	assert.Empty(t, diff)
	assert.True(t, errors.Is(b.SetState(nil), console.ErrNilState))
}
