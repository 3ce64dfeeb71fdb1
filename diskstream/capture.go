package diskstream

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dudk/console/signal"
)

// Capture writes frames captured by the real-time goroutine into a wav
// file. Encoding is done by the butler.
type Capture struct {
	path     string
	file     *os.File
	encoder  *wav.Encoder
	ring     *Ring
	bitDepth signal.BitDepth

	ib    *audio.IntBuffer
	chunk [][]signal.Sample

	captured atomic.Int64
	overruns atomic.Int64
	closed   atomic.Bool
}

// CreateCapture creates the file and allocates ring for bufferFrames.
func CreateCapture(path string, sampleRate, channels int, bitDepth signal.BitDepth, bufferFrames int) (*Capture, error) {
	if bitDepth != signal.BitDepth16 && bitDepth != signal.BitDepth24 {
		return nil, ErrUnsupportedBitDepth
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	chunk := min(defaultChunk, bufferFrames)
	c := &Capture{
		path:     path,
		file:     f,
		encoder:  wav.NewEncoder(f, sampleRate, int(bitDepth), channels, 1),
		ring:     NewRing(channels, bufferFrames),
		bitDepth: bitDepth,
		ib: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			Data:           make([]int, 0, chunk*channels),
			SourceBitDepth: int(bitDepth),
		},
		chunk: make([][]signal.Sample, channels),
	}
	for i := range c.chunk {
		c.chunk[i] = make([]signal.Sample, chunk)
	}
	return c, nil
}

// Path returns the file path.
func (c *Capture) Path() string {
	return c.path
}

// Channels returns number of channels of the file.
func (c *Capture) Channels() int {
	return c.ring.Channels()
}

// Captured returns number of frames accepted from the real-time goroutine.
func (c *Capture) Captured() int64 {
	return c.captured.Load()
}

// Overruns returns number of frames lost because the butler was late.
func (c *Capture) Overruns() int64 {
	return c.overruns.Load()
}

// Write is called on the real-time goroutine. Frames that don't fit are
// dropped and counted.
func (c *Capture) Write(src [][]signal.Sample, n int) int {
	if c.closed.Load() {
		return 0
	}
	written := c.ring.Write(src, n)
	c.captured.Add(int64(written))
	if written < n {
		c.overruns.Add(int64(n - written))
	}
	return written
}

// NeedsButler returns true if a chunk of frames is ready to be written.
func (c *Capture) NeedsButler() bool {
	return c.ring.ReadSpace() >= len(c.chunk[0])
}

// Service writes all complete chunks to the file.
func (c *Capture) Service() error {
	return c.flush(len(c.chunk[0]))
}

// flush writes frames while at least threshold frames are available.
func (c *Capture) flush(threshold int) error {
	for c.ring.ReadSpace() >= max(threshold, 1) {
		n := c.ring.Read(c.chunk, len(c.chunk[0]))
		c.ib.Data = signal.InterleaveInts(c.chunk, n, c.bitDepth, c.ib.Data)
		if err := c.encoder.Write(c.ib); err != nil {
			return fmt.Errorf("encode %s: %w", c.path, err)
		}
	}
	return nil
}

// Close writes remaining frames and closes the file.
func (c *Capture) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.flush(1); err != nil {
		return errors.Join(err, c.file.Close())
	}
	if err := c.encoder.Close(); err != nil {
		return errors.Join(err, c.file.Close())
	}
	return c.file.Close()
}
