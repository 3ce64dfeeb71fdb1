// Package export renders master output of the session into files. The
// engine runs in freewheel mode and the exporter replaces session
// processing for each cycle.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dudk/console/engine"
	"github.com/dudk/console/port"
	"github.com/dudk/console/session"
	"github.com/dudk/console/signal"
)

// ErrClosed is returned when exporter is closed before all frames are
// written.
var ErrClosed = errors.New("exporter closed")

// Sink receives rendered frames.
type Sink interface {
	Write(frames [][]signal.Sample, n int) error
	Close() error
}

// Exporter writes a fixed number of master output frames into sink.
type Exporter struct {
	session *session.Session
	sink    Sink
	outputs []*port.Port
	view    [][]signal.Sample

	// mu guards the sink between the freewheel goroutine and Close.
	mu      sync.Mutex
	total   int64
	written int64
	closed  bool
	err     error
	done    chan struct{}
	once    sync.Once
}

// New creates exporter of frames from the master route of session.
func New(s *session.Session, sink Sink, frames int64) *Exporter {
	outputs := s.Master().OutputPorts()
	return &Exporter{
		session: s,
		sink:    sink,
		outputs: outputs,
		view:    make([][]signal.Sample, len(outputs)),
		total:   frames,
		done:    make(chan struct{}),
	}
}

// Process renders a cycle and writes master output. It's used as engine
// freewheel handler.
func (x *Exporter) Process(nframes int) {
	// freewheeling isn't real-time, disk streams are refilled in place
	x.session.Butler().Service()
	x.session.Process(nframes)
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed || x.written >= x.total {
		return
	}
	n := int(min(int64(nframes), x.total-x.written))
	for i, p := range x.outputs {
		x.view[i] = p.Audio(nframes)
	}
	if err := x.sink.Write(x.view, n); err != nil {
		x.finish(fmt.Errorf("write frames: %w", err))
		return
	}
	x.written += int64(n)
	if x.written >= x.total {
		x.finish(nil)
	}
}

func (x *Exporter) finish(err error) {
	x.once.Do(func() {
		x.err = err
		x.closed = true
		close(x.done)
	})
}

// Written returns number of frames written.
func (x *Exporter) Written() int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.written
}

// Wait blocks until all frames are written or context is done.
func (x *Exporter) Wait(ctx context.Context) error {
	select {
	case <-x.done:
		x.mu.Lock()
		defer x.mu.Unlock()
		return x.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops writing and closes the sink.
func (x *Exporter) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.finish(ErrClosed)
	return x.sink.Close()
}

// Render plays the session from the start and exports frames of master
// output. The engine must be running.
func Render(ctx context.Context, e *engine.Engine, s *session.Session, sink Sink, frames int64) error {
	if e.State() != engine.Running {
		return errors.Join(fmt.Errorf("render: %w", engine.ErrInvalidState), sink.Close())
	}
	x := New(s, sink, frames)
	if err := s.Locate(0); err != nil {
		return errors.Join(err, x.Close())
	}
	if err := s.Roll(); err != nil {
		return errors.Join(err, x.Close())
	}
	e.SetFreewheel(true, x.Process)
	err := x.Wait(ctx)
	e.SetFreewheel(false, nil)
	return errors.Join(err, s.Stop(), x.Close())
}
