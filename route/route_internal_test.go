package route

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/console"
	"github.com/dudk/console/metric"
	"github.com/dudk/console/port"
	"github.com/dudk/console/signal"
)

func TestSkipOnContention(t *testing.T) {
	ctx := console.NewContext(44100, 4)
	r, err := New(ctx, "r")
	require.NoError(t, err)

	c := console.Cycle{Frames: 4, Index: 1}
	assert.True(t, r.Process(c))
	r.mu.Lock()
	assert.False(t, r.Process(c))
	r.mu.Unlock()
	assert.True(t, r.Process(c))

	m := metric.Get(r)
	assert.NotEmpty(t, m[metric.SkipCounter])
}

func TestSilentOnSkip(t *testing.T) {
	var tests = []struct {
		description string
		locked      bool
		active      bool
		expected    signal.Sample
	}{
		{
			description: "processed",
			active:      true,
			expected:    1,
		},
		{
			description: "chain is being edited",
			locked:      true,
			active:      true,
		},
		{
			description: "inactive",
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			ctx := console.NewContext(44100, 4)
			stereo := signal.AudioChannels(2)
			r, err := New(ctx, "r", WithInputs(stereo), WithOutputs(stereo))
			require.NoError(t, err)
			var src []*port.Port
			for i, in := range r.InputPorts() {
				out, err := ctx.Ports.Register(fmt.Sprintf("src %d", i+1), signal.Audio, port.Output, 0)
				require.NoError(t, err)
				require.NoError(t, ctx.Ports.Connect(out.Name(), in.Name()))
				src = append(src, out)
			}
			run := func() bool {
				ctx.Ports.CycleStart(4)
				for _, p := range src {
					copy(p.Audio(4), []signal.Sample{1, 1, 1, 1})
				}
				return r.Process(console.Cycle{Frames: 4, Index: ctx.Ports.Cycle()})
			}
			// previous cycle leaves signal in the output ports
			require.True(t, run())
			for _, p := range r.OutputPorts() {
				require.Equal(t, []signal.Sample{1, 1, 1, 1}, p.Audio(4))
			}

			r.SetActive(test.active)
			if test.locked {
				r.mu.Lock()
			}
			assert.Equal(t, !test.locked, run())
			if test.locked {
				r.mu.Unlock()
			}
			e := test.expected
			for _, p := range r.OutputPorts() {
				assert.Equal(t, []signal.Sample{e, e, e, e}, p.Audio(4))
			}
		})
	}
}

func TestDelay(t *testing.T) {
	d := newDelay()
	d.allocate(1, 3)
	bufs := signal.NewBufferSet(signal.AudioChannels(1), 4)
	copy(bufs.Audio(0).Data(4), []float32{1, 2, 3, 4})
	d.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []float32{0, 0, 0, 1}, bufs.Audio(0).Data(4))
	copy(bufs.Audio(0).Data(4), []float32{5, 6, 7, 8})
	d.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []float32{2, 3, 4, 5}, bufs.Audio(0).Data(4))
	d.Reset()
	copy(bufs.Audio(0).Data(4), []float32{1, 1, 1, 1})
	d.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []float32{0, 0, 0, 1}, bufs.Audio(0).Data(4))
}
