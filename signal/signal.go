// Package signal provides the buffer model shared by every stage of the
// processing graph. It allows to:
//   - describe per-type stream counts with ChannelCount;
//   - hold non-interleaved audio and time-stamped MIDI in a BufferSet;
//   - convert between non-interleaved float and interleaved int/float data.
package signal

import (
	"math"
	"time"
)

// Sample is a single audio sample. Backends deliver 32-bit floats, so the
// whole graph works in this precision to allow zero-copy port binding.
type Sample = float32

const (
	// BitDepth8 is 8 bit depth.
	BitDepth8 = BitDepth(8)
	// BitDepth16 is 16 bit depth.
	BitDepth16 = BitDepth(16)
	// BitDepth24 is 24 bit depth.
	BitDepth24 = BitDepth(24)
	// BitDepth32 is 32 bit depth.
	BitDepth32 = BitDepth(32)
)

// BitDepth contains values required for int-to-float and backward conversion.
type BitDepth int

// devider is used when int to float conversion is done.
func (bitDepth BitDepth) devider() int {
	switch bitDepth {
	case BitDepth8:
		return math.MaxInt8
	case BitDepth16:
		return math.MaxInt16
	case BitDepth24:
		return 1<<23 - 1
	case BitDepth32:
		return math.MaxInt32
	default:
		return 1
	}
}

// multiplier is used when float to int conversion is done.
func (bitDepth BitDepth) multiplier() int {
	switch bitDepth {
	case BitDepth8:
		return math.MaxInt8 - 1
	case BitDepth16:
		return math.MaxInt16 - 1
	case BitDepth24:
		return 1<<23 - 2
	case BitDepth32:
		return math.MaxInt32 - 1
	default:
		return 1
	}
}

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// Deinterleave reads interleaved ints into non-interleaved destination
// channels. It returns the number of frames written. The destination
// slices define the maximum number of frames.
func Deinterleave(ints []int, bitDepth BitDepth, dst [][]Sample) int {
	numChannels := len(dst)
	if numChannels == 0 || len(ints) == 0 {
		return 0
	}
	devider := float32(bitDepth.devider())
	frames := int(math.Ceil(float64(len(ints)) / float64(numChannels)))
	if frames > len(dst[0]) {
		frames = len(dst[0])
	}
	for c := range dst {
		pos := 0
		for j := c; pos < frames; j += numChannels {
			if j < len(ints) {
				dst[c][pos] = Sample(float32(ints[j]) / devider)
			} else {
				dst[c][pos] = 0
			}
			pos++
		}
	}
	return frames
}

// InterleaveInts writes frames of non-interleaved float data into
// interleaved ints. The returned slice reuses dst capacity when possible.
func InterleaveInts(src [][]Sample, frames int, bitDepth BitDepth, dst []int) []int {
	numChannels := len(src)
	if numChannels == 0 {
		return dst[:0]
	}
	size := frames * numChannels
	if cap(dst) < size {
		dst = make([]int, size)
	}
	dst = dst[:size]
	multiplier := float32(bitDepth.multiplier())
	for c := range src {
		for i := 0; i < frames; i++ {
			dst[i*numChannels+c] = int(clip(src[c][i]) * multiplier)
		}
	}
	return dst
}

// InterleaveFloats writes frames of non-interleaved data into interleaved
// float destination. Missing source channels are written as silence.
func InterleaveFloats(src [][]Sample, frames, numChannels int, dst []float32) {
	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			if c < len(src) {
				dst[i*numChannels+c] = src[c][i]
			} else {
				dst[i*numChannels+c] = 0
			}
		}
	}
}

// DeinterleaveFloats is the reverse of InterleaveFloats.
func DeinterleaveFloats(src []float32, frames, numChannels int, dst [][]Sample) {
	for c := range dst {
		if c >= numChannels {
			clear(dst[c][:frames])
			continue
		}
		for i := 0; i < frames; i++ {
			dst[c][i] = src[i*numChannels+c]
		}
	}
}

func clip(v Sample) Sample {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
