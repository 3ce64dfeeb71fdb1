package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dudk/console"
	"github.com/dudk/console/engine"
	"github.com/dudk/console/engine/dummy"
	"github.com/dudk/console/engine/oto"
	"github.com/dudk/console/engine/portaudio"
	"github.com/dudk/console/session"
)

// ErrUnknownBackend is returned for backend names which aren't supported.
var ErrUnknownBackend = errors.New("unknown backend")

const captureChannels = 2

func newBackend(c *session.Config, name string) (engine.Backend, error) {
	outputs := c.Master.Outputs
	if outputs <= 0 {
		outputs = 2
	}
	switch name {
	case "", "dummy":
		return dummy.New(
			dummy.WithSampleRate(c.SampleRate),
			dummy.WithBufferSize(c.BufferSize),
			dummy.WithChannels(captureChannels, outputs),
		), nil
	case "portaudio":
		return portaudio.New(c.SampleRate, c.BufferSize, portaudio.WithChannels(captureChannels, outputs))
	case "oto":
		return oto.New(c.SampleRate, c.BufferSize, outputs)
	}
	return nil, fmt.Errorf("%s: %w", name, ErrUnknownBackend)
}

// instance is an engine running a session built from config.
type instance struct {
	engine  *engine.Engine
	session *session.Session
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// open creates engine for the backend and builds session. Session
// service goroutines run until close. Session isn't attached to the
// engine.
func (a *app) open(ctx context.Context, c *session.Config, backend string, options ...engine.Option) (*instance, error) {
	b, err := newBackend(c, backend)
	if err != nil {
		return nil, err
	}
	logger := a.logger.WithField("backend", backend)
	cc := c.NewContext(console.WithLogger(logger))
	e, err := engine.New(cc, b, append([]engine.Option{engine.WithLogger(logger)}, options...)...)
	if err != nil {
		return nil, errors.Join(err, b.Close())
	}
	s, err := session.Build(cc, c, session.WithLogger(logger))
	if err != nil {
		return nil, errors.Join(err, e.Stop(true))
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &instance{
		engine:  e,
		session: s,
		cancel:  cancel,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		s.Run(ctx)
	}()
	return r, nil
}

func (r *instance) close() error {
	err := r.engine.Stop(true)
	r.cancel()
	r.wg.Wait()
	return errors.Join(err, r.session.Destroy())
}
