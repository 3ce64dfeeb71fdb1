package oto

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/console/signal"
)

// counter writes cycle number to the first channel and its negative to
// the second.
type counter struct {
	cycles int
}

func (c *counter) Process(nframes int, _, out [][]signal.Sample) {
	c.cycles++
	for i := 0; i < nframes; i++ {
		out[0][i] = signal.Sample(c.cycles)
		out[1][i] = -signal.Sample(c.cycles)
	}
}

func (c *counter) SetBufferSize(int) error { return nil }
func (c *counter) SetSampleRate(int)       {}
func (c *counter) Xrun()                   {}
func (c *counter) Halt(error)              {}

func decode(p []byte) []float32 {
	v := make([]float32, len(p)/bytesPerSample)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*bytesPerSample:]))
	}
	return v
}

func TestReader(t *testing.T) {
	h := &counter{}
	r := newReader(h, 2, 2)

	// single cycle encodes 2 frames of 2 channels
	p := make([]byte, 10)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []float32{1, -1, 1, -1}, decode(p[:n]))
	assert.Equal(t, 1, h.cycles)

	// read spans leftover and next cycles
	p = make([]byte, 24)
	n, err = r.Read(p[:6])
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n2, err := r.Read(p[4:])
	require.NoError(t, err)
	assert.Equal(t, 20, n2)
	assert.Equal(t, []float32{1, -1, 2, -2, 2, -2}, decode(p))
	assert.Equal(t, 2, h.cycles)

	empty := newReader(h, 0, 2)
	_, err = empty.Read(p)
	assert.Equal(t, io.EOF, err)
}
