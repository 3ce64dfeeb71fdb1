package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/console/export"
	"github.com/dudk/console/signal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const config = `
sample-rate: 44100
buffer-size: 256
master:
  outputs: 2
routes:
  - name: drums
    track: true
    playback: drums.wav
    connect: [bus]
  - name: bus
    connect: [master]
`

// setup writes config and a mono playback file of constant 0.25.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	sink, err := export.NewWav(filepath.Join(dir, "drums.wav"), 44100, 1, signal.BitDepth16)
	require.NoError(t, err)
	frames := [][]signal.Sample{make([]signal.Sample, 44100)}
	for i := range frames[0] {
		frames[0][i] = 0.25
	}
	require.NoError(t, sink.Write(frames, len(frames[0])))
	require.NoError(t, sink.Close())
	path := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))
	return path
}

func execute(args ...string) (string, error) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	var names []string
	for _, c := range newRootCommand().Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"render", "play", "devices", "inspect"}, names)
}

func TestRender(t *testing.T) {
	path := setup(t)
	out := filepath.Join(t.TempDir(), "mix.wav")
	stdout, err := execute("render", path, "-o", out, "-l", "50ms")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Rendered 50ms")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	require.Equal(t, 2, buf.Format.NumChannels)
	data := [][]signal.Sample{make([]signal.Sample, 2205), make([]signal.Sample, 2205)}
	require.Equal(t, 2205, signal.Deinterleave(buf.Data, signal.BitDepth16, data))
	for _, c := range data {
		for _, v := range c[256:] {
			require.InDelta(t, 0.25, v, 1e-3)
		}
	}

	_, err = execute("render", path, "-o", filepath.Join(t.TempDir(), "mix.flac"))
	assert.True(t, errors.Is(err, ErrUnknownFormat))
	_, err = execute("render", path)
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	path := setup(t)
	stdout, err := execute("inspect", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "drums")
	assert.Contains(t, stdout, "bus")

	stdout, err = execute("inspect", "--dump", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "master")
}

func TestPlay(t *testing.T) {
	path := setup(t)
	stdout, err := execute("play", path, "-d", "20ms")
	require.NoError(t, err)
	assert.Contains(t, stdout, "with dummy backend")

	_, err = execute("play", path, "-b", "alsa")
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}
