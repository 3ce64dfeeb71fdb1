package amp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/console"
	"github.com/dudk/console/amp"
	"github.com/dudk/console/control"
	"github.com/dudk/console/signal"
)

func buffers(frames int, values ...signal.Sample) *signal.BufferSet {
	bufs := signal.NewBufferSet(signal.AudioChannels(1), frames)
	copy(bufs.Audio(0).Data(frames), values)
	return bufs
}

func TestAmp(t *testing.T) {
	ctx := console.NewContext(44100, 4)
	a := amp.New(ctx)
	out, ok := a.CanSupportIO(signal.Channels(2, 1))
	assert.True(t, ok)
	assert.Equal(t, signal.Channels(2, 1), out)
	require.NoError(t, a.ConfigureIO(signal.AudioChannels(1), signal.AudioChannels(1)))

	var tests = []struct {
		description string
		gain        float32
		input       []signal.Sample
		expected    []signal.Sample
	}{
		{
			description: "unity",
			gain:        1,
			input:       []signal.Sample{1, 1, 1, 1},
			expected:    []signal.Sample{1, 1, 1, 1},
		},
		{
			description: "ramp to half",
			gain:        0.5,
			input:       []signal.Sample{1, 1, 1, 1},
			expected:    []signal.Sample{0.875, 0.75, 0.625, 0.5},
		},
		{
			description: "steady half",
			gain:        0.5,
			input:       []signal.Sample{1, 1, 1, 1},
			expected:    []signal.Sample{0.5, 0.5, 0.5, 0.5},
		},
	}
	for _, c := range tests {
		a.SetGain(c.gain)
		bufs := buffers(4, c.input...)
		a.Run(bufs, console.Cycle{Frames: 4})
		assert.Equal(t, c.expected, bufs.Audio(0).Data(4), c.description)
	}
}

func TestFirstCycle(t *testing.T) {
	ctx := console.NewContext(44100, 4)
	a := amp.New(ctx)
	a.SetGain(0.5)
	require.NoError(t, a.ConfigureIO(signal.AudioChannels(1), signal.AudioChannels(1)))

	bufs := buffers(4, 1, -0.8, 1, 1)
	a.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []signal.Sample{0.5, -0.4, 0.5, 0.5}, bufs.Audio(0).Data(4))

	a.SetGain(1)
	bufs = buffers(4, 1, 1, 1, 1)
	a.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []signal.Sample{0.625, 0.75, 0.875, 1}, bufs.Audio(0).Data(4))

	// reactivation applies the gain as is
	a.SetGain(0.25)
	a.Deactivate()
	a.Activate()
	bufs = buffers(4, 1, 1, 1, 1)
	a.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []signal.Sample{0.25, 0.25, 0.25, 0.25}, bufs.Audio(0).Data(4))
}

func TestDeclick(t *testing.T) {
	ctx := console.NewContext(44100, 4)
	ctx.SetDeclickFrames(2)
	a := amp.New(ctx)
	require.NoError(t, a.ConfigureIO(signal.AudioChannels(1), signal.AudioChannels(1)))

	a.Declick(amp.FadeOut)
	bufs := buffers(4, 1, 1, 1, 1)
	a.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []signal.Sample{0.5, 0, 0, 0}, bufs.Audio(0).Data(4))

	a.Declick(amp.FadeIn)
	bufs = buffers(4, 1, 1, 1, 1)
	a.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []signal.Sample{0.5, 1, 1, 1}, bufs.Audio(0).Data(4))

	// declick is applied once
	bufs = buffers(4, 1, 1, 1, 1)
	a.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []signal.Sample{1, 1, 1, 1}, bufs.Audio(0).Data(4))
}

func TestAutomation(t *testing.T) {
	ctx := console.NewContext(44100, 4)
	a := amp.New(ctx)
	require.NoError(t, a.ConfigureIO(signal.AudioChannels(1), signal.AudioChannels(1)))
	a.GainControl().Edit(func(l *control.List) {
		l.Add(0, 0)
		l.Add(4, 1)
	})
	a.GainControl().SetAutoState(control.Play)

	bufs := buffers(4, 1, 1, 1, 1)
	a.Run(bufs, console.Cycle{Frames: 4})
	assert.Equal(t, []signal.Sample{0, 0.25, 0.5, 0.75}, bufs.Audio(0).Data(4))

	s := a.State()
	assert.Equal(t, "play", s.String("automation", ""))

	b := amp.New(ctx)
	require.NoError(t, b.SetState(s))
	assert.Equal(t, control.Play, b.GainControl().AutoState())
	assert.InDelta(t, 0.75, b.Gain(), 1e-6)
	assert.Equal(t, a.ID(), b.ID())
}
