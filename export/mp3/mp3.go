// Package mp3 encodes rendered frames with lame.
package mp3

import (
	"encoding/binary"
	"errors"
	"os"

	"github.com/viert/lame"

	"github.com/dudk/console/signal"
)

// Sink writes frames into mp3 file.
type Sink struct {
	f    *os.File
	wr   *lame.LameWriter
	ints []int
	buf  []byte
}

// NewSink creates mp3 file. Quality is lame algorithm quality from 0
// (best) to 9.
func NewSink(path string, sampleRate, numChannels, bitRate, quality int) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := Sink{
		f:  f,
		wr: lame.NewWriter(f),
	}
	s.wr.Encoder.SetBitrate(bitRate)
	s.wr.Encoder.SetQuality(quality)
	s.wr.Encoder.SetNumChannels(numChannels)
	s.wr.Encoder.SetInSamplerate(sampleRate)
	if numChannels > 1 {
		s.wr.Encoder.SetMode(lame.JOINT_STEREO)
	}
	s.wr.Encoder.SetVBR(lame.VBR_RH)
	s.wr.Encoder.InitParams()
	return &s, nil
}

// Write encodes n frames as 16 bit PCM.
func (s *Sink) Write(frames [][]signal.Sample, n int) error {
	s.ints = signal.InterleaveInts(frames, n, signal.BitDepth16, s.ints)
	s.buf = s.buf[:0]
	for _, v := range s.ints {
		s.buf = binary.LittleEndian.AppendUint16(s.buf, uint16(int16(v)))
	}
	_, err := s.wr.Write(s.buf)
	return err
}

// Close flushes encoder and closes the file.
func (s *Sink) Close() error {
	if err := s.wr.Close(); err != nil {
		return errors.Join(err, s.f.Close())
	}
	return s.f.Close()
}
