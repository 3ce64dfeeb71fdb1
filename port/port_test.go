package port_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/console/event"
	"github.com/dudk/console/port"
	"github.com/dudk/console/signal"
)

func TestRegister(t *testing.T) {
	r := port.NewRegistry(4, port.WithMaxPorts(2))
	_, err := r.Register("a/out 1", signal.Audio, port.Output, 0)
	require.NoError(t, err)

	_, err = r.Register("a/out 1", signal.Audio, port.Output, 0)
	assert.True(t, errors.Is(err, port.ErrDuplicatePort))

	_, err = r.Register("a/out 2", signal.Audio, port.Output, 0)
	require.NoError(t, err)
	_, err = r.Register("a/out 3", signal.Audio, port.Output, 0)
	assert.True(t, errors.Is(err, port.ErrExhausted))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a/out 1", "a/out 2"}, r.Ports("a/", port.Output, false))
}

func TestConnectMix(t *testing.T) {
	bus := event.NewBus()
	sub := bus.Subscribe(8, event.PortConnected)
	r := port.NewRegistry(4, port.WithBus(bus))
	out1, _ := r.Register("out1", signal.Audio, port.Output, 0)
	out2, _ := r.Register("out2", signal.Audio, port.Output, 0)
	in, _ := r.Register("in", signal.Audio, port.Input, 0)
	_, _ = r.Register("midi", signal.MIDI, port.Output, 0)

	assert.True(t, errors.Is(r.Connect("in", "out1"), port.ErrIncompatible))
	assert.True(t, errors.Is(r.Connect("midi", "in"), port.ErrIncompatible))
	assert.True(t, errors.Is(r.Connect("missing", "in"), port.ErrNotFound))

	r.CycleStart(4)
	assert.Equal(t, []signal.Sample{0, 0, 0, 0}, in.Audio(4))

	require.NoError(t, r.Connect("out1", "in"))
	require.NoError(t, r.Connect("out1", "in"))
	assert.Equal(t, "out1", (<-sub.C()).Source)
	assert.Len(t, in.Connections(), 1)
	assert.True(t, in.Connected())

	copy(out1.Audio(4), []signal.Sample{1, 1, 1, 1})
	// single connection is not copied
	assert.Equal(t, &out1.Audio(4)[0], &in.Audio(4)[0])

	require.NoError(t, r.Connect("out2", "in"))
	copy(out2.Audio(4), []signal.Sample{1, 2, 3, 4})
	r.CycleStart(4)
	copy(out1.Audio(4), []signal.Sample{1, 1, 1, 1})
	copy(out2.Audio(4), []signal.Sample{1, 2, 3, 4})
	assert.Equal(t, []signal.Sample{2, 3, 4, 5}, in.Audio(4))

	// output ports are silenced at cycle start
	r.CycleStart(4)
	assert.Equal(t, []signal.Sample{0, 0, 0, 0}, in.Audio(4))

	require.NoError(t, r.Disconnect("out2", "in"))
	require.NoError(t, r.Unregister(out1))
	assert.False(t, in.Connected())
	assert.True(t, errors.Is(r.Unregister(out1), port.ErrNotFound))
}

func TestAttach(t *testing.T) {
	r := port.NewRegistry(2)
	capture, _ := r.Register("system:capture_1", signal.Audio, port.Output, port.IsPhysical)
	assert.True(t, capture.Physical())
	hw := []signal.Sample{0.5, 0.25}
	capture.Attach(hw)
	r.CycleStart(2)
	// physical outputs are filled by the backend and not silenced
	assert.Equal(t, hw, capture.Audio(2))
	r.CycleEnd()
	assert.False(t, capture.AudioBuffer().Attached())

	r.SetBufferSize(8)
	assert.Equal(t, 8, r.BufferSize())
	assert.Len(t, capture.Audio(8), 8)
}
