// Package diskstream moves audio between the real-time goroutine and
// files. The real-time side only touches lock-free rings, file I/O is done
// by the butler goroutine.
package diskstream

import (
	"sync/atomic"

	"github.com/dudk/console/signal"
)

// Ring is a single-producer single-consumer buffer of non-interleaved
// frames. Write and Read can be called concurrently from one goroutine
// each.
type Ring struct {
	channels [][]signal.Sample
	size     uint64
	read     atomic.Uint64
	write    atomic.Uint64
}

// NewRing allocates ring for frames of provided number of channels.
func NewRing(channels, frames int) *Ring {
	r := &Ring{
		channels: make([][]signal.Sample, channels),
		size:     uint64(frames),
	}
	for i := range r.channels {
		r.channels[i] = make([]signal.Sample, frames)
	}
	return r
}

// Channels returns number of channels.
func (r *Ring) Channels() int {
	return len(r.channels)
}

// Size returns capacity in frames.
func (r *Ring) Size() int {
	return int(r.size)
}

// ReadSpace returns number of frames available for reading.
func (r *Ring) ReadSpace() int {
	return int(r.write.Load() - r.read.Load())
}

// WriteSpace returns number of frames that can be written.
func (r *Ring) WriteSpace() int {
	return int(r.size) - r.ReadSpace()
}

// Write copies up to n frames from src and returns number of frames
// written. Missing source channels are written as silence.
func (r *Ring) Write(src [][]signal.Sample, n int) int {
	n = min(n, r.WriteSpace())
	if n <= 0 {
		return 0
	}
	w := r.write.Load()
	for c, ch := range r.channels {
		var s []signal.Sample
		if c < len(src) {
			s = src[c]
		}
		copyIn(ch, s, w%r.size, n)
	}
	r.write.Store(w + uint64(n))
	return n
}

// Read copies up to n frames into dst and returns number of frames read.
// Extra destination channels are left untouched.
func (r *Ring) Read(dst [][]signal.Sample, n int) int {
	n = min(n, r.ReadSpace())
	if n <= 0 {
		return 0
	}
	rd := r.read.Load()
	for c := 0; c < min(len(dst), len(r.channels)); c++ {
		copyOut(dst[c], r.channels[c], rd%r.size, n)
	}
	r.read.Store(rd + uint64(n))
	return n
}

// Skip drops up to n frames and returns number of frames dropped.
func (r *Ring) Skip(n int) int {
	n = min(n, r.ReadSpace())
	if n > 0 {
		r.read.Add(uint64(n))
	}
	return n
}

// Reset empties the ring. Neither side may use the ring concurrently.
func (r *Ring) Reset() {
	r.read.Store(0)
	r.write.Store(0)
}

func copyIn(ring, src []signal.Sample, pos uint64, n int) {
	first := min(n, len(ring)-int(pos))
	if src == nil {
		clear(ring[pos : int(pos)+first])
		clear(ring[:n-first])
		return
	}
	copy(ring[pos:], src[:first])
	copy(ring, src[first:n])
}

func copyOut(dst, ring []signal.Sample, pos uint64, n int) {
	first := min(n, len(ring)-int(pos))
	copy(dst, ring[pos:int(pos)+first])
	copy(dst[first:n], ring[:n-first])
}
