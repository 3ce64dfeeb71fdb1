package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dudk/console/engine"
	"github.com/dudk/console/session"
)

type playCommand struct {
	*app
	backend  string
	duration time.Duration
	memLock  bool
}

func (a *app) playCommand() *cobra.Command {
	pc := &playCommand{app: a}
	cmd := &cobra.Command{
		Use:   "play CONFIG",
		Short: "Play the session until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE:  pc.run,
	}
	cmd.Flags().StringVarP(&pc.backend, "backend", "b", "", "audio backend: dummy, portaudio or oto (default from config)")
	cmd.Flags().BoolVar(&pc.memLock, "mlock", false, "lock process memory")
	cmd.Flags().DurationVarP(&pc.duration, "duration", "d", 0, "stop after duration, zero plays until interrupted")
	return cmd
}

func (pc *playCommand) run(cmd *cobra.Command, args []string) error {
	c, err := session.LoadConfig(args[0])
	if err != nil {
		return err
	}
	backend := pc.backend
	if backend == "" {
		backend = c.Backend
	}
	var options []engine.Option
	if pc.memLock {
		options = append(options, engine.WithMemoryLock())
	}
	in, err := pc.open(cmd.Context(), c, backend, options...)
	if err != nil {
		return err
	}
	if err := in.engine.Attach(in.session); err != nil {
		return errors.Join(err, in.close())
	}
	if err := in.engine.Start(); err != nil {
		return errors.Join(err, in.close())
	}
	if err := in.session.Roll(); err != nil {
		return errors.Join(err, in.close())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Playing %s with %s backend\n", args[0], backend)

	var timeout <-chan time.Time
	if pc.duration > 0 {
		timeout = time.After(pc.duration)
	}
	select {
	case <-cmd.Context().Done():
	case <-timeout:
	}
	pc.logger.Debugf("stopped at frame %d", in.session.Position())
	return in.close()
}
