// Package oto provides a playback-only backend. Oto pulls encoded
// samples from a reader and the reader runs a cycle whenever its buffer
// is drained.
package oto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/dudk/console/engine"
	"github.com/dudk/console/signal"
)

// ErrRunning is returned when backend is started twice.
var ErrRunning = errors.New("oto backend is running")

const bytesPerSample = 4

// Backend plays master output with oto.
type Backend struct {
	sampleRate int
	bufferSize int
	channels   int

	context *oto.Context
	mu      sync.Mutex
	player  *oto.Player
}

// New creates oto context. Only one context can exist in the process.
func New(sampleRate, bufferSize, channels int) (*Backend, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   signal.DurationOf(sampleRate, int64(2*bufferSize)),
	})
	if err != nil {
		return nil, fmt.Errorf("create oto context: %w", err)
	}
	<-ready
	return &Backend{
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		channels:   channels,
		context:    ctx,
	}, nil
}

// Name returns backend name.
func (b *Backend) Name() string {
	return "oto"
}

// Channels returns number of capture and playback channels. Oto
// doesn't capture.
func (b *Backend) Channels() (int, int) {
	return 0, b.channels
}

// SampleRate returns sample rate of the context.
func (b *Backend) SampleRate() int {
	return b.sampleRate
}

// BufferSize returns number of frames per cycle.
func (b *Backend) BufferSize() int {
	return b.bufferSize
}

// Start creates player which pulls cycles from handler.
func (b *Backend) Start(h engine.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.player != nil {
		return ErrRunning
	}
	b.player = b.context.NewPlayer(newReader(h, b.channels, b.bufferSize))
	b.player.Play()
	return nil
}

// Stop closes the player.
func (b *Backend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.player == nil {
		return nil
	}
	err := b.player.Close()
	b.player = nil
	return err
}

// Close stops playback and suspends the context.
func (b *Backend) Close() error {
	return errors.Join(b.Stop(), b.context.Suspend())
}

// reader runs cycles and encodes output as interleaved float32 samples.
type reader struct {
	handler    engine.Handler
	bufferSize int
	out        [][]signal.Sample
	buf        []byte
	// pending holds encoded bytes not yet read.
	pending []byte
}

func newReader(h engine.Handler, channels, bufferSize int) *reader {
	out := make([][]signal.Sample, channels)
	for i := range out {
		out[i] = make([]signal.Sample, bufferSize)
	}
	return &reader{
		handler:    h,
		bufferSize: bufferSize,
		out:        out,
		buf:        make([]byte, 0, channels*bufferSize*bytesPerSample),
	}
}

// Read fills p with whole samples.
func (r *reader) Read(p []byte) (int, error) {
	if len(r.out) == 0 {
		return 0, io.EOF
	}
	n := 0
	for n+bytesPerSample <= len(p) {
		if len(r.pending) == 0 {
			r.cycle()
		}
		copied := copy(p[n:], r.pending)
		// keep reads aligned to samples
		copied -= copied % bytesPerSample
		r.pending = r.pending[copied:]
		n += copied
		if copied == 0 {
			break
		}
	}
	return n, nil
}

func (r *reader) cycle() {
	r.handler.Process(r.bufferSize, nil, r.out)
	r.buf = r.buf[:0]
	for i := 0; i < r.bufferSize; i++ {
		for _, c := range r.out {
			r.buf = binary.LittleEndian.AppendUint32(r.buf, math.Float32bits(c[i]))
		}
	}
	r.pending = r.buf
}
