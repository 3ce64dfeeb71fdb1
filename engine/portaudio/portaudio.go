// Package portaudio provides a backend which runs cycles in the
// portaudio stream callback.
package portaudio

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/dudk/console/engine"
)

// ErrDeviceNotFound is returned when device with provided name doesn't
// exist.
var ErrDeviceNotFound = errors.New("device not found")

type (
	// Backend plays and captures audio with portaudio devices.
	Backend struct {
		input      string
		output     string
		inputs     int
		outputs    int
		sampleRate int
		bufferSize int
		name       string

		stream  *portaudio.Stream
		handler atomic.Pointer[engine.Handler]
	}

	// Option configures portaudio backend.
	Option func(*Backend)

	// Device describes available device.
	Device struct {
		Name       string
		HostAPI    string
		Inputs     int
		Outputs    int
		SampleRate float64
	}
)

// WithDevices sets input and output device names. Empty name means the
// default device.
func WithDevices(input, output string) Option {
	return func(b *Backend) {
		b.input, b.output = input, output
	}
}

// WithChannels sets number of capture and playback channels.
func WithChannels(in, out int) Option {
	return func(b *Backend) {
		b.inputs, b.outputs = in, out
	}
}

// New initializes portaudio and opens the stream. Backend must be closed
// to release portaudio.
func New(sampleRate, bufferSize int, options ...Option) (*Backend, error) {
	b := &Backend{
		inputs:     2,
		outputs:    2,
		sampleRate: sampleRate,
		bufferSize: bufferSize,
	}
	for _, option := range options {
		option(b)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	if err := b.open(); err != nil {
		return nil, errors.Join(err, portaudio.Terminate())
	}
	return b, nil
}

func (b *Backend) open() error {
	in, err := device(b.input, b.inputs > 0, portaudio.DefaultInputDevice)
	if err != nil {
		return err
	}
	out, err := device(b.output, b.outputs > 0, portaudio.DefaultOutputDevice)
	if err != nil {
		return err
	}
	params := portaudio.LowLatencyParameters(in, out)
	params.Input.Channels = 0
	if in != nil {
		b.inputs = min(b.inputs, in.MaxInputChannels)
		params.Input.Channels = b.inputs
	} else {
		b.inputs = 0
	}
	params.Output.Channels = 0
	if out != nil {
		b.outputs = min(b.outputs, out.MaxOutputChannels)
		params.Output.Channels = b.outputs
	} else {
		b.outputs = 0
	}
	params.SampleRate = float64(b.sampleRate)
	params.FramesPerBuffer = b.bufferSize
	b.name = "portaudio"
	if out != nil {
		b.name = fmt.Sprintf("portaudio:%s", out.Name)
	}
	b.stream, err = portaudio.OpenStream(params, b.process)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	return nil
}

func device(name string, wanted bool, byDefault func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if !wanted {
		return nil, nil
	}
	if name == "" {
		return byDefault()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrDeviceNotFound)
}

// process is the stream callback.
func (b *Backend) process(in, out [][]float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	h := b.handler.Load()
	if h == nil {
		for _, o := range out {
			clear(o)
		}
		return
	}
	if flags&(portaudio.InputOverflow|portaudio.InputUnderflow|portaudio.OutputOverflow|portaudio.OutputUnderflow) != 0 {
		(*h).Xrun()
	}
	nframes := b.bufferSize
	if len(out) > 0 {
		nframes = len(out[0])
	} else if len(in) > 0 {
		nframes = len(in[0])
	}
	(*h).Process(nframes, in, out)
}

// Name returns backend name.
func (b *Backend) Name() string {
	return b.name
}

// Channels returns number of capture and playback channels.
func (b *Backend) Channels() (int, int) {
	return b.inputs, b.outputs
}

// SampleRate returns sample rate of the stream.
func (b *Backend) SampleRate() int {
	return b.sampleRate
}

// BufferSize returns number of frames per callback.
func (b *Backend) BufferSize() int {
	return b.bufferSize
}

// Start starts the stream.
func (b *Backend) Start(h engine.Handler) error {
	b.handler.Store(&h)
	return b.stream.Start()
}

// Stop stops the stream. Pending buffers are played.
func (b *Backend) Stop() error {
	err := b.stream.Stop()
	b.handler.Store(nil)
	return err
}

// Close closes the stream and terminates portaudio.
func (b *Backend) Close() error {
	return errors.Join(b.stream.Close(), portaudio.Terminate())
}

// Devices returns available devices.
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer portaudio.Terminate()
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(infos))
	for _, d := range infos {
		device := Device{
			Name:       d.Name,
			Inputs:     d.MaxInputChannels,
			Outputs:    d.MaxOutputChannels,
			SampleRate: d.DefaultSampleRate,
		}
		if d.HostApi != nil {
			device.HostAPI = d.HostApi.Name
		}
		devices = append(devices, device)
	}
	return devices, nil
}
