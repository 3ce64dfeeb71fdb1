//go:build portaudio

package portaudio_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/console"
	"github.com/dudk/console/engine"
	"github.com/dudk/console/engine/portaudio"
	"github.com/dudk/console/session"
)

const (
	sampleRate = 44100
	bufferSize = 512
)

func TestDevices(t *testing.T) {
	devices, err := portaudio.Devices()
	require.NoError(t, err)
	assert.NotEmpty(t, devices)
}

func TestBackend(t *testing.T) {
	b, err := portaudio.New(sampleRate, bufferSize, portaudio.WithChannels(0, 2))
	require.NoError(t, err)
	in, out := b.Channels()
	assert.Zero(t, in)
	assert.Equal(t, 2, out)

	ctx := console.NewContext(sampleRate, bufferSize)
	e, err := engine.New(ctx, b)
	require.NoError(t, err)
	s, err := session.New(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Attach(s))

	require.NoError(t, e.Start())
	assert.Eventually(t, func() bool {
		return e.FrameTime() > 0
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, e.Stop(true))
	require.NoError(t, s.Destroy())
}

func TestDeviceNotFound(t *testing.T) {
	_, err := portaudio.New(sampleRate, bufferSize, portaudio.WithDevices("", "no such device"))
	assert.ErrorIs(t, err, portaudio.ErrDeviceNotFound)
}
