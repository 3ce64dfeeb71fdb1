package mp3_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/console/export/mp3"
	"github.com/dudk/console/signal"
)

func TestSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp3")
	sink, err := mp3.NewSink(path, 44100, 2, 192, 2)
	require.NoError(t, err)

	frames := [][]signal.Sample{make([]signal.Sample, 1152), make([]signal.Sample, 1152)}
	for i := range frames[0] {
		frames[0][i] = 0.5
		frames[1][i] = -0.5
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, sink.Write(frames, len(frames[0])))
	}
	require.NoError(t, sink.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())

	_, err = mp3.NewSink(filepath.Join(t.TempDir(), "missing", "out.mp3"), 44100, 2, 192, 2)
	assert.Error(t, err)
}
