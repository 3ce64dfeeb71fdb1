// Package track binds a route to disk streams for playback and record.
package track

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dudk/console"
	"github.com/dudk/console/diskstream"
	"github.com/dudk/console/event"
	"github.com/dudk/console/route"
	"github.com/dudk/console/signal"
)

var (
	// ErrNoInput is returned when track without connected input is armed.
	ErrNoInput = errors.New("track input is not connected")
	// ErrRecording is returned when recording track is changed.
	ErrRecording = errors.New("track is recording")
)

// RecordState is the state of the record machine.
type RecordState int32

// Record states.
const (
	Disabled RecordState = iota
	Armed
	Recording
	Stopped
)

var recordNames = [...]string{"disabled", "armed", "recording", "stopped"}

func (s RecordState) String() string {
	if s < 0 || int(s) >= len(recordNames) {
		return "unknown"
	}
	return recordNames[s]
}

// Monitoring defines what track plays.
type Monitoring int32

// Monitoring modes. Auto monitors input while track is recording or armed
// and stopped, otherwise disk.
const (
	MonitorAuto Monitoring = iota
	MonitorInput
	MonitorDisk
)

var monitoringNames = [...]string{"auto", "input", "disk"}

func (m Monitoring) String() string {
	if m < 0 || int(m) >= len(monitoringNames) {
		return "unknown"
	}
	return monitoringNames[m]
}

// ParseMonitoring returns monitoring mode by name.
func ParseMonitoring(s string) (Monitoring, bool) {
	for i, n := range monitoringNames {
		if n == s {
			return Monitoring(i), true
		}
	}
	return MonitorAuto, false
}

type source int32

const (
	silence source = iota
	input
	disk
)

// Track is a route which plays a disk stream and records its input.
type Track struct {
	*route.Route
	ctx    *console.Context
	butler *diskstream.Butler

	playback atomic.Pointer[diskstream.Playback]
	capture  atomic.Pointer[diskstream.Capture]
	// mu serializes stream swaps and record state changes from non-real-time
	// goroutines.
	mu sync.Mutex

	record     atomic.Int32
	monitoring atomic.Int32
	source     atomic.Int32
	connected  atomic.Bool
	butlerFlag atomic.Bool

	dir      string
	bitDepth signal.BitDepth
	takes    int
	takeList []string

	// owned by the real-time goroutine
	files [][]signal.Sample
	view  [][]signal.Sample
}

// Option configures track.
type Option func(*Track)

// WithCaptureDir sets directory for recorded takes.
func WithCaptureDir(dir string) Option {
	return func(t *Track) {
		t.dir = dir
	}
}

// WithBitDepth sets bit depth of recorded takes.
func WithBitDepth(bd signal.BitDepth) Option {
	return func(t *Track) {
		t.bitDepth = bd
	}
}

// New creates track with a new route.
func New(ctx *console.Context, name string, butler *diskstream.Butler, routeOptions []route.Option, options ...Option) (*Track, error) {
	r, err := route.New(ctx, name, routeOptions...)
	if err != nil {
		return nil, err
	}
	t := &Track{
		Route:    r,
		ctx:      ctx,
		butler:   butler,
		dir:      os.TempDir(),
		bitDepth: signal.BitDepth16,
	}
	for _, option := range options {
		option(t)
	}
	t.allocate(r.Input().Audio())
	t.view = make([][]signal.Sample, 0, r.Input().Audio())
	t.MonitoringCheck()
	r.SetSource(t)
	return t, nil
}

// allocate prepares scratch buffers for file channels.
func (t *Track) allocate(channels int) {
	t.files = make([][]signal.Sample, channels)
	for i := range t.files {
		t.files[i] = make([]signal.Sample, t.ctx.BufferSize())
	}
}

// SetBufferSize reallocates scratch buffers after the engine buffer size
// has changed.
func (t *Track) SetBufferSize() {
	t.Route.Exclusive(func() { t.allocate(len(t.files)) })
}

// RecordState returns current record state.
func (t *Track) RecordState() RecordState {
	return RecordState(t.record.Load())
}

// Monitoring returns monitoring mode.
func (t *Track) Monitoring() Monitoring {
	return Monitoring(t.monitoring.Load())
}

// SetMonitoring changes monitoring mode.
func (t *Track) SetMonitoring(m Monitoring) {
	if Monitoring(t.monitoring.Swap(int32(m))) != m {
		t.ctx.Bus.Emit(event.Message{Kind: event.MonitoringChanged, Source: t.ID(), Value: float64(m)})
	}
}

// Playback returns current playback stream.
func (t *Track) Playback() *diskstream.Playback {
	return t.playback.Load()
}

// Capture returns current capture stream.
func (t *Track) Capture() *diskstream.Capture {
	return t.capture.Load()
}

// Takes returns paths of finished recordings.
func (t *Track) Takes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.takeList...)
}

// SetPlayback replaces playback stream. Previous stream is closed.
func (t *Track) SetPlayback(pb *diskstream.Playback) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pb != nil && pb.Channels() > len(t.files) {
		t.Route.Exclusive(func() { t.allocate(pb.Channels()) })
	}
	old := t.playback.Swap(pb)
	if pb != nil {
		t.butler.Add(pb)
		t.butler.Wake()
	}
	if old == nil {
		return nil
	}
	t.butler.Remove(old)
	return old.Close()
}

// Load opens wav file as playback stream with one second of read-ahead.
func (t *Track) Load(path string) error {
	pb, err := diskstream.OpenPlayback(path, t.ctx.SampleRate())
	if err != nil {
		return fmt.Errorf("track %s: %w", t.Name(), err)
	}
	return t.SetPlayback(pb)
}

// Locate moves playback to frame.
func (t *Track) Locate(frame int64) {
	if pb := t.playback.Load(); pb != nil {
		pb.Locate(frame)
		t.butler.Wake()
	}
}

// Arm enables recording. Input must be connected. New take is created
// and starts recording when the session allows it and transport rolls.
func (t *Track) Arm() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.RecordState() {
	case Armed, Recording:
		return nil
	case Stopped:
		if err := t.finishTake(); err != nil {
			return err
		}
	}
	t.MonitoringCheck()
	if !t.connected.Load() {
		return fmt.Errorf("arm %s: %w", t.Name(), ErrNoInput)
	}
	channels := t.Route.Input().Audio()
	t.takes++
	path := filepath.Join(t.dir, fmt.Sprintf("%s-%d.wav", t.Name(), t.takes))
	c, err := diskstream.CreateCapture(path, t.ctx.SampleRate(), channels, t.bitDepth, t.ctx.SampleRate())
	if err != nil {
		return fmt.Errorf("arm %s: %w", t.Name(), err)
	}
	t.Route.Exclusive(func() {
		if cap(t.view) < channels {
			t.view = make([][]signal.Sample, 0, channels)
		}
	})
	t.capture.Store(c)
	t.butler.Add(c)
	t.setRecord(Armed)
	return nil
}

// Disarm disables recording. Recorded take is finished.
func (t *Track) Disarm() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.RecordState() == Disabled {
		return nil
	}
	t.setRecord(Disabled)
	return t.finishTake()
}

// finishTake closes capture stream. Must be called with mu held and the
// record machine not recording.
func (t *Track) finishTake() error {
	c := t.capture.Swap(nil)
	if c == nil {
		return nil
	}
	t.butler.Remove(c)
	err := c.Close()
	if c.Captured() > 0 {
		t.takeList = append(t.takeList, c.Path())
	} else {
		err = errors.Join(err, os.Remove(c.Path()))
	}
	if t.RecordState() == Stopped {
		t.setRecord(Disabled)
	}
	return err
}

func (t *Track) setRecord(s RecordState) {
	if RecordState(t.record.Swap(int32(s))) != s {
		t.ctx.Bus.Emit(event.Message{Kind: event.RecordStateChanged, Source: t.ID(), Value: float64(s)})
	}
}

// transition changes record state on the real-time goroutine.
func (t *Track) transition(from, to RecordState) {
	if t.record.CompareAndSwap(int32(from), int32(to)) {
		t.ctx.Bus.Emit(event.Message{Kind: event.RecordStateChanged, Source: t.ID(), Value: float64(to)})
	}
}

// MonitoringCheck refreshes input connection state. It's called
// periodically by the engine.
func (t *Track) MonitoringCheck() {
	connected := false
	for _, p := range t.Route.InputPorts() {
		if p.Connected() {
			connected = true
			break
		}
	}
	if t.connected.Swap(connected) != connected {
		t.ctx.Bus.Emit(event.Message{Kind: event.MonitoringChanged, Source: t.ID(), Value: boolValue(connected)})
	}
}

// InputConnected returns cached input connection state.
func (t *Track) InputConnected() bool {
	return t.connected.Load()
}

// Process runs the track for a cycle. It returns false if the cycle was
// skipped and true if butler has work to do.
func (t *Track) Process(c console.Cycle) (processed, butler bool) {
	t.butlerFlag.Store(false)
	processed = t.Route.Process(c)
	butler = t.butlerFlag.Load()
	if butler {
		t.butler.Wake()
	}
	return processed, butler
}

// Fill implements route.Source. It's called with route chain locked.
func (t *Track) Fill(bufs *signal.BufferSet, c console.Cycle) {
	rolling := c.Rolling()
	t.updateRecord(rolling)
	state := t.RecordState()

	src := t.resolveSource(state, rolling)
	t.source.Store(int32(src))
	t.Route.SetMonitoring(src != silence)

	t.Route.ReadInputs(bufs, c)
	if state == Recording {
		if cp := t.capture.Load(); cp != nil {
			t.view = bufs.AudioData(c.Frames, t.view)
			cp.Write(t.view, c.Frames)
			if cp.NeedsButler() {
				t.butlerFlag.Store(true)
			}
		}
	}
	switch src {
	case disk:
		t.readDisk(bufs, c.Frames)
	case silence:
		bufs.Silence(c.Frames, 0)
	}
}

// updateRecord moves record machine according to session permission and
// transport.
func (t *Track) updateRecord(rolling bool) {
	switch t.RecordState() {
	case Armed:
		if rolling && t.ctx.RecordEnabled() && t.connected.Load() {
			t.transition(Armed, Recording)
		}
	case Recording:
		if !rolling || !t.ctx.RecordEnabled() {
			t.transition(Recording, Stopped)
			t.butlerFlag.Store(true)
		}
	}
}

func (t *Track) resolveSource(state RecordState, rolling bool) source {
	mode := t.Monitoring()
	if mode == MonitorAuto {
		if state == Recording || (state == Armed && !rolling) {
			mode = MonitorInput
		} else {
			mode = MonitorDisk
		}
	}
	switch mode {
	case MonitorInput:
		return input
	case MonitorDisk:
		if t.playback.Load() != nil && rolling {
			return disk
		}
	}
	return silence
}

// readDisk reads playback into the route layout. Missing frames are
// silenced.
func (t *Track) readDisk(bufs *signal.BufferSet, n int) {
	pb := t.playback.Load()
	if pb == nil || pb.Channels() > len(t.files) {
		bufs.Silence(n, 0)
		return
	}
	if len(t.files) > 0 && len(t.files[0]) < n {
		bufs.Silence(n, 0)
		return
	}
	files := t.files[:pb.Channels()]
	read := pb.Read(files, n)
	if pb.NeedsButler() {
		t.butlerFlag.Store(true)
	}
	out := bufs.Count().Audio()
	for i := 0; i < out; i++ {
		data := bufs.Audio(i).Data(n)
		clear(data)
		if read == 0 {
			continue
		}
		Distribute(data[:read], files, i, out, read)
	}
}

// Distribute writes channel i of out-channel layout from src channels. If
// source has fewer channels they are broadcast, if it has more they are
// summed down.
func Distribute(dst []signal.Sample, src [][]signal.Sample, i, out, n int) {
	if len(src) == 0 {
		return
	}
	if len(src) <= out {
		copy(dst, src[i%len(src)][:n])
		return
	}
	for j := i; j < len(src); j += out {
		signal.Mix(dst, src[j][:n])
	}
}

// Source returns what was monitored in the last cycle: "input", "disk" or
// "silence".
func (t *Track) Source() string {
	switch source(t.source.Load()) {
	case input:
		return "input"
	case disk:
		return "disk"
	}
	return "silence"
}

// State returns route state with track properties.
func (t *Track) State() *console.State {
	s := t.Route.State()
	ts := console.NewState("track").
		Set("monitoring", t.Monitoring().String()).
		Set("record", t.RecordState().String())
	if pb := t.playback.Load(); pb != nil {
		ts.Set("playback", pb.Path())
	}
	return s.Add(ts)
}

// SetState restores route and track properties. Missing playback file is
// logged and track stays without playback.
func (t *Track) SetState(s *console.State) error {
	if err := t.Route.SetState(s); err != nil {
		return err
	}
	ts := s.Child("track")
	if ts == nil {
		return nil
	}
	if m, ok := ParseMonitoring(ts.String("monitoring", "auto")); ok {
		t.SetMonitoring(m)
	}
	if path, ok := ts.Get("playback"); ok && path != "" {
		if err := t.Load(path); err != nil {
			t.ctx.Logger.WithField("route", t.Name()).Warnf("restore playback: %v", err)
		}
	}
	return nil
}

// Destroy finishes recording, closes streams and destroys the route.
func (t *Track) Destroy() error {
	var errs console.Errors
	errs = errs.Add(t.Disarm())
	errs = errs.Add(t.SetPlayback(nil))
	errs = errs.Add(t.Route.Destroy())
	return errs.Ret()
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
