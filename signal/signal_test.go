package signal_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gitlab.com/gomidi/midi/v2"

	"github.com/dudk/console/signal"
)

func TestDeinterleave(t *testing.T) {
	tests := []struct {
		ints        []int
		numChannels int
		frames      int
		bitDepth    signal.BitDepth
		expected    [][]signal.Sample
	}{
		{
			ints:        []int{1, 2, 1, 2, 1, 2, 1, 2},
			numChannels: 2,
			frames:      4,
			expected: [][]signal.Sample{
				{1, 1, 1, 1},
				{2, 2, 2, 2},
			},
		},
		{
			ints:        []int{1, 2, 1, 2, 1},
			numChannels: 2,
			frames:      4,
			expected: [][]signal.Sample{
				{1, 1, 1, 0},
				{2, 2, 0, 0},
			},
		},
		{
			ints:        []int{math.MaxInt16, -math.MaxInt16},
			numChannels: 2,
			frames:      1,
			bitDepth:    signal.BitDepth16,
			expected: [][]signal.Sample{
				{1},
				{-1},
			},
		},
		{
			ints:        nil,
			numChannels: 2,
			frames:      4,
			expected: [][]signal.Sample{
				{0, 0, 0, 0},
				{0, 0, 0, 0},
			},
		},
	}

	for _, test := range tests {
		dst := make([][]signal.Sample, test.numChannels)
		for i := range dst {
			dst[i] = make([]signal.Sample, test.frames)
		}
		signal.Deinterleave(test.ints, test.bitDepth, dst)
		assert.Equal(t, test.expected, dst)
	}
}

func TestInterleave(t *testing.T) {
	src := [][]signal.Sample{{0.5, -0.5, 2}, {0, 1, -3}}
	ints := signal.InterleaveInts(src, 3, signal.BitDepth16, nil)
	m := math.MaxInt16 - 1
	assert.Equal(t, []int{m / 2, 0, -m / 2, m, m, -m}, ints)

	floats := make([]float32, 9)
	signal.InterleaveFloats(src, 3, 3, floats)
	assert.Equal(t, []float32{0.5, 0, 0, -0.5, 1, 0, 2, -3, 0}, floats)

	back := [][]signal.Sample{make([]signal.Sample, 3), make([]signal.Sample, 3)}
	signal.DeinterleaveFloats(floats, 3, 3, back)
	assert.Equal(t, src, back)
}

func TestChannelCount(t *testing.T) {
	stereo := signal.AudioChannels(2)
	withMIDI := signal.Channels(1, 1)

	assert.Equal(t, 2, stereo.Audio())
	assert.Equal(t, 0, stereo.MIDI())
	assert.Equal(t, signal.Channels(2, 1), stereo.Max(withMIDI))
	assert.Equal(t, signal.Channels(1, 0), stereo.Min(withMIDI))
	assert.True(t, stereo.Contains(signal.AudioChannels(1)))
	assert.False(t, stereo.Contains(withMIDI))
	assert.True(t, signal.AudioChannels(1).Less(stereo))
	assert.True(t, stereo == signal.Channels(2, 0))
	assert.Equal(t, signal.Channels(2, 3), stereo.With(signal.MIDI, 3))
	assert.Equal(t, "2a/1m", signal.Channels(2, 1).String())
	assert.Equal(t, 0, signal.Channels(-1, 0).Audio())

	dt, err := signal.ParseDataType("midi")
	assert.NoError(t, err)
	assert.Equal(t, signal.MIDI, dt)
	_, err = signal.ParseDataType("video")
	assert.Error(t, err)
}

func TestBufferSet(t *testing.T) {
	bufs := signal.NewBufferSet(signal.Channels(2, 1), 4)
	assert.Equal(t, signal.Channels(2, 1), bufs.Count())

	copy(bufs.Audio(0).Data(4), []signal.Sample{1, 2, 3, 4})
	bufs.Silence(2, 2)
	assert.Equal(t, []signal.Sample{1, 2, 0, 0}, bufs.Audio(0).Data(4))

	// active count never exceeds the allocation
	bufs.SetCount(signal.AudioChannels(8))
	assert.Equal(t, signal.AudioChannels(2), bufs.Count())

	external := []signal.Sample{9, 9, 9, 9}
	bufs.Audio(1).Attach(external)
	assert.True(t, bufs.Audio(1).Attached())
	bufs.Audio(1).Silence(4, 0)
	assert.Equal(t, []signal.Sample{0, 0, 0, 0}, external)
	bufs.DetachAll()
	assert.False(t, bufs.Audio(1).Attached())

	other := signal.NewBufferSet(signal.AudioChannels(2), 4)
	copy(other.Audio(0).Data(4), []signal.Sample{1, 1, 1, 1})
	bufs.AcceptFrom(other, 4)
	assert.Equal(t, []signal.Sample{2, 3, 1, 1}, bufs.Audio(0).Data(4))

	bufs.Ensure(signal.AudioChannels(3), 8)
	assert.Equal(t, 8, bufs.Capacity())
	assert.Equal(t, signal.Channels(3, 1), bufs.Available())
}

func TestMIDIBuffer(t *testing.T) {
	a := signal.NewMIDIBuffer(4)
	b := signal.NewMIDIBuffer(4)
	a.Push(signal.Event{Time: 5, Message: midi.NoteOn(0, 60, 100)})
	b.Push(signal.Event{Time: 1, Message: midi.NoteOn(0, 62, 100)})
	b.Push(signal.Event{Time: 7, Message: midi.NoteOff(0, 62)})
	a.Merge(b)
	times := []int{}
	for _, e := range a.Events() {
		times = append(times, e.Time)
	}
	assert.Equal(t, []int{1, 5, 7}, times)

	a.Push(signal.Event{Time: 8})
	assert.False(t, a.Push(signal.Event{Time: 9}))
	a.Silence()
	assert.Empty(t, a.Events())
}

func TestGain(t *testing.T) {
	samples := []signal.Sample{1, 1, 1, 1}
	signal.ApplyRamp(samples, 0, 1)
	assert.Equal(t, []signal.Sample{0.25, 0.5, 0.75, 1}, samples)

	signal.ApplyGain(samples, 0.5)
	assert.InDeltaSlice(t, []float64{0.125, 0.25, 0.375, 0.5}, toFloat64(samples), 1e-6)

	signal.ApplyGain(samples, 0)
	assert.Equal(t, []signal.Sample{0, 0, 0, 0}, samples)

	dst := []signal.Sample{1, 1}
	signal.MixWithGain(dst, []signal.Sample{1, -1}, 0.5)
	assert.Equal(t, []signal.Sample{1.5, 0.5}, dst)

	assert.Equal(t, float32(0.9), signal.Peak([]signal.Sample{0.1, -0.9, 0.5}, 0.2))
	assert.Equal(t, float32(0.95), signal.Peak([]signal.Sample{0.1}, 0.95))

	assert.InDelta(t, 0.5, float64(signal.DBToCoefficient(-6.0206)), 1e-4)
	assert.InDelta(t, -6.0206, signal.CoefficientToDB(0.5), 1e-3)
	assert.True(t, math.IsInf(signal.CoefficientToDB(0), -1))
}

func toFloat64(s []signal.Sample) []float64 {
	r := make([]float64, len(s))
	for i := range s {
		r[i] = float64(s[i])
	}
	return r
}

func TestMixWithRamp(t *testing.T) {
	dst := []signal.Sample{1, 1, 1, 1}
	signal.MixWithRamp(dst, []signal.Sample{1, 1, 1, 1}, 1, 0)
	assert.Equal(t, []signal.Sample{1.75, 1.5, 1.25, 1}, dst)

	signal.MixWithRamp(dst, []signal.Sample{2, 2, 2, 2}, 0.5, 0.5)
	assert.Equal(t, []signal.Sample{2.75, 2.5, 2.25, 2}, dst)
}
