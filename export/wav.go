package export

import (
	"errors"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dudk/console/signal"
)

// ErrUnsupportedBitDepth is returned for bit depths wav sink can't encode.
var ErrUnsupportedBitDepth = errors.New("unsupported bit depth")

// Wav encodes frames into wav file.
type Wav struct {
	file     *os.File
	encoder  *wav.Encoder
	bitDepth signal.BitDepth
	ib       *audio.IntBuffer
}

// NewWav creates wav file.
func NewWav(path string, sampleRate, channels int, bitDepth signal.BitDepth) (*Wav, error) {
	if bitDepth != signal.BitDepth16 && bitDepth != signal.BitDepth24 {
		return nil, ErrUnsupportedBitDepth
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Wav{
		file:     f,
		encoder:  wav.NewEncoder(f, sampleRate, int(bitDepth), channels, 1),
		bitDepth: bitDepth,
		ib: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: int(bitDepth),
		},
	}, nil
}

// Write encodes n frames.
func (w *Wav) Write(frames [][]signal.Sample, n int) error {
	w.ib.Data = signal.InterleaveInts(frames, n, w.bitDepth, w.ib.Data)
	return w.encoder.Write(w.ib)
}

// Close writes wav header and closes the file.
func (w *Wav) Close() error {
	if err := w.encoder.Close(); err != nil {
		return errors.Join(err, w.file.Close())
	}
	return w.file.Close()
}
