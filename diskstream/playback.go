package diskstream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dudk/console/signal"
)

var (
	// ErrInvalidFile is returned when file is not a valid wav.
	ErrInvalidFile = errors.New("invalid wav file")
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16 and 24 bit depth is supported")
)

const defaultChunk = 4096

// Playback reads wav file ahead of the transport. Decoding is done by the
// butler, the real-time goroutine reads decoded frames from the ring.
type Playback struct {
	path       string
	file       *os.File
	decoder    *wav.Decoder
	ring       *Ring
	sampleRate int
	bitDepth   signal.BitDepth

	ib    *audio.IntBuffer
	chunk [][]signal.Sample

	eof      atomic.Bool
	position atomic.Int64
	// locate is the requested position or -1.
	locate atomic.Int64
}

// OpenPlayback opens file and allocates ring for bufferFrames frames.
func OpenPlayback(path string, bufferFrames int) (*Playback, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, errors.Join(fmt.Errorf("open %s: %w", path, ErrInvalidFile), f.Close())
	}
	bitDepth := signal.BitDepth(d.BitDepth)
	if bitDepth != signal.BitDepth16 && bitDepth != signal.BitDepth24 {
		return nil, errors.Join(fmt.Errorf("open %s: %w", path, ErrUnsupportedBitDepth), f.Close())
	}
	channels := int(d.NumChans)
	chunk := min(defaultChunk, bufferFrames)
	p := &Playback{
		path:       path,
		file:       f,
		decoder:    d,
		ring:       NewRing(channels, bufferFrames),
		sampleRate: int(d.SampleRate),
		bitDepth:   bitDepth,
		ib: &audio.IntBuffer{
			Format:         d.Format(),
			Data:           make([]int, chunk*channels),
			SourceBitDepth: int(d.BitDepth),
		},
		chunk: make([][]signal.Sample, channels),
	}
	for i := range p.chunk {
		p.chunk[i] = make([]signal.Sample, chunk)
	}
	p.locate.Store(-1)
	return p, nil
}

// Path returns the file path.
func (p *Playback) Path() string {
	return p.path
}

// Channels returns number of channels in the file.
func (p *Playback) Channels() int {
	return p.ring.Channels()
}

// SampleRate returns sample rate of the file.
func (p *Playback) SampleRate() int {
	return p.sampleRate
}

// Position returns the frame that will be read next.
func (p *Playback) Position() int64 {
	return p.position.Load()
}

// Read is called on the real-time goroutine. It returns fewer than n
// frames if the file ended or the butler is late.
func (p *Playback) Read(dst [][]signal.Sample, n int) int {
	if p.locate.Load() >= 0 {
		return 0
	}
	read := p.ring.Read(dst, n)
	p.position.Add(int64(read))
	return read
}

// EOF returns true if file is decoded and ring is empty.
func (p *Playback) EOF() bool {
	return p.eof.Load() && p.ring.ReadSpace() == 0
}

// Locate requests reading from frame. The ring is refilled by the butler.
func (p *Playback) Locate(frame int64) {
	p.locate.Store(max(frame, 0))
}

// NeedsButler returns true if ring has space for a chunk of frames.
func (p *Playback) NeedsButler() bool {
	if p.locate.Load() >= 0 {
		return true
	}
	return !p.eof.Load() && p.ring.WriteSpace() >= len(p.chunk[0])
}

// Service fills the ring until it's full or file ends.
func (p *Playback) Service() error {
	if frame := p.locate.Load(); frame >= 0 {
		if err := p.seek(frame); err != nil {
			return err
		}
		p.locate.Store(-1)
	}
	for !p.eof.Load() && p.ring.WriteSpace() >= len(p.chunk[0]) {
		if _, err := p.refill(); err != nil {
			return err
		}
	}
	return nil
}

// refill decodes a single chunk into the ring.
func (p *Playback) refill() (int, error) {
	read, err := p.decoder.PCMBuffer(p.ib)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("decode %s: %w", p.path, err)
	}
	if read == 0 {
		p.eof.Store(true)
		return 0, nil
	}
	frames := signal.Deinterleave(p.ib.Data[:read], p.bitDepth, p.chunk)
	return p.ring.Write(p.chunk, frames), nil
}

// seek rewinds the decoder and skips frames. The ring is not read while
// locate is pending.
func (p *Playback) seek(frame int64) error {
	if err := p.decoder.Rewind(); err != nil {
		return fmt.Errorf("rewind %s: %w", p.path, err)
	}
	p.ring.Reset()
	p.eof.Store(false)
	for skipped := int64(0); skipped < frame; {
		n, err := p.refill()
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		skipped += int64(p.ring.Skip(int(min(int64(n), frame-skipped))))
	}
	p.position.Store(frame)
	return nil
}

// Close closes the file.
func (p *Playback) Close() error {
	return p.file.Close()
}
