package signal

import (
	"gitlab.com/gomidi/midi/v2"
)

// AudioBuffer is a single channel of samples. It owns memory, but can be
// attached to externally-owned memory for the current cycle.
type AudioBuffer struct {
	data     []Sample
	owned    []Sample
	attached bool
}

// NewAudioBuffer allocates a buffer of provided capacity.
func NewAudioBuffer(capacity int) *AudioBuffer {
	owned := make([]Sample, capacity)
	return &AudioBuffer{
		data:  owned,
		owned: owned,
	}
}

// Data returns first n samples of the buffer.
func (b *AudioBuffer) Data(n int) []Sample {
	if n > len(b.data) {
		n = len(b.data)
	}
	return b.data[:n]
}

// Capacity returns number of samples that buffer can hold.
func (b *AudioBuffer) Capacity() int {
	return len(b.data)
}

// Attach makes buffer use external memory until Detach is called.
func (b *AudioBuffer) Attach(external []Sample) {
	b.data = external
	b.attached = true
}

// Detach returns buffer to its own memory.
func (b *AudioBuffer) Detach() {
	if !b.attached {
		return
	}
	b.data = b.owned
	b.attached = false
}

// Attached returns true if buffer is bound to external memory.
func (b *AudioBuffer) Attached() bool {
	return b.attached
}

// Silence zeroes n samples starting at offset.
func (b *AudioBuffer) Silence(n, offset int) {
	end := offset + n
	if end > len(b.data) {
		end = len(b.data)
	}
	if offset >= end {
		return
	}
	clear(b.data[offset:end])
}

// ReadFrom copies n samples from src.
func (b *AudioBuffer) ReadFrom(src []Sample, n int) {
	copy(b.data[:min(n, len(b.data))], src)
}

// AcceptFrom mixes n samples from src.
func (b *AudioBuffer) AcceptFrom(src []Sample, n int) {
	n = min(n, len(b.data), len(src))
	Mix(b.data[:n], src[:n])
}

// AcceptWithGain mixes n samples from src scaled by gain.
func (b *AudioBuffer) AcceptWithGain(src []Sample, n int, gain float32) {
	n = min(n, len(b.data), len(src))
	MixWithGain(b.data[:n], src[:n], gain)
}

// Event is a MIDI message positioned within a cycle.
type Event struct {
	Time    int
	Message midi.Message
}

// MIDIBuffer holds events of a single MIDI stream for one cycle.
type MIDIBuffer struct {
	events []Event
}

// NewMIDIBuffer preallocates space for capacity events.
func NewMIDIBuffer(capacity int) *MIDIBuffer {
	return &MIDIBuffer{events: make([]Event, 0, capacity)}
}

// Push appends event. It returns false if buffer is full, so the real-time
// thread never allocates.
func (b *MIDIBuffer) Push(e Event) bool {
	if len(b.events) == cap(b.events) {
		return false
	}
	b.events = append(b.events, e)
	return true
}

// Events returns events of the current cycle.
func (b *MIDIBuffer) Events() []Event {
	return b.events
}

// Silence drops all events.
func (b *MIDIBuffer) Silence() {
	b.events = b.events[:0]
}

// ReadFrom replaces events with events of src.
func (b *MIDIBuffer) ReadFrom(src *MIDIBuffer) {
	b.events = b.events[:0]
	b.Merge(src)
}

// Merge adds events from src keeping time order.
func (b *MIDIBuffer) Merge(src *MIDIBuffer) {
	if src == nil || len(src.events) == 0 {
		return
	}
	for _, e := range src.events {
		if !b.Push(e) {
			break
		}
		// insertion keeps the order stable without allocation
		for i := len(b.events) - 1; i > 0 && b.events[i-1].Time > b.events[i].Time; i-- {
			b.events[i-1], b.events[i] = b.events[i], b.events[i-1]
		}
	}
}

const defaultMIDICapacity = 256

// BufferSet is an ordered, per-type collection of buffers. Allocation
// happens only in Ensure, which is called from non-real-time threads when
// the graph is reconfigured. SetCount changes the active count within the
// allocation and is safe for the real-time thread.
type BufferSet struct {
	audio    []*AudioBuffer
	midi     []*MIDIBuffer
	count    ChannelCount
	capacity int
}

// NewBufferSet allocates buffers for max streams of capacity samples.
func NewBufferSet(max ChannelCount, capacity int) *BufferSet {
	b := &BufferSet{}
	b.Ensure(max, capacity)
	b.count = max
	return b
}

// Ensure grows the allocation to hold at least max streams of capacity
// samples.
func (b *BufferSet) Ensure(max ChannelCount, capacity int) {
	if capacity > b.capacity {
		// all audio buffers must be reallocated
		b.audio = b.audio[:0]
		b.capacity = capacity
	}
	for len(b.audio) < max.Audio() {
		b.audio = append(b.audio, NewAudioBuffer(b.capacity))
	}
	for len(b.midi) < max.MIDI() {
		b.midi = append(b.midi, NewMIDIBuffer(defaultMIDICapacity))
	}
	b.count = b.count.Min(b.Available())
}

// Available returns the allocated stream count.
func (b *BufferSet) Available() ChannelCount {
	return Channels(len(b.audio), len(b.midi))
}

// Capacity returns number of samples each audio buffer can hold.
func (b *BufferSet) Capacity() int {
	return b.capacity
}

// SetCount changes the active count. It's clamped to the allocation.
func (b *BufferSet) SetCount(c ChannelCount) {
	b.count = c.Min(b.Available())
}

// Count returns the active count.
func (b *BufferSet) Count() ChannelCount {
	return b.count
}

// Audio returns audio buffer i. It's valid for all allocated buffers, not
// only the active ones.
func (b *BufferSet) Audio(i int) *AudioBuffer {
	return b.audio[i]
}

// MIDI returns MIDI buffer i.
func (b *BufferSet) MIDI(i int) *MIDIBuffer {
	return b.midi[i]
}

// AudioData returns n samples of every active audio buffer. dst is
// reused to avoid allocation.
func (b *BufferSet) AudioData(n int, dst [][]Sample) [][]Sample {
	dst = dst[:0]
	for i := 0; i < b.count.Audio(); i++ {
		dst = append(dst, b.audio[i].Data(n))
	}
	return dst
}

// Silence zeroes n samples of all active buffers starting at offset.
func (b *BufferSet) Silence(n, offset int) {
	for i := 0; i < b.count.Audio(); i++ {
		b.audio[i].Silence(n, offset)
	}
	for i := 0; i < b.count.MIDI(); i++ {
		b.midi[i].Silence()
	}
}

// ReadFrom copies n samples of src into this set. Active count becomes
// the count of src, clamped to the allocation.
func (b *BufferSet) ReadFrom(src *BufferSet, n int) {
	b.SetCount(src.count)
	for i := 0; i < b.count.Audio(); i++ {
		b.audio[i].ReadFrom(src.audio[i].Data(n), n)
	}
	for i := 0; i < b.count.MIDI(); i++ {
		b.midi[i].ReadFrom(src.midi[i])
	}
}

// AcceptFrom mixes n samples of src into this set without changing the
// active count.
func (b *BufferSet) AcceptFrom(src *BufferSet, n int) {
	audio := min(b.count.Audio(), src.count.Audio())
	for i := 0; i < audio; i++ {
		b.audio[i].AcceptFrom(src.audio[i].Data(n), n)
	}
	midis := min(b.count.MIDI(), src.count.MIDI())
	for i := 0; i < midis; i++ {
		b.midi[i].Merge(src.midi[i])
	}
}

// DetachAll returns all audio buffers to their own memory.
func (b *BufferSet) DetachAll() {
	for _, a := range b.audio {
		a.Detach()
	}
}
