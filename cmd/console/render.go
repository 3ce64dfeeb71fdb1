package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dudk/console/export"
	"github.com/dudk/console/export/mp3"
	"github.com/dudk/console/session"
	"github.com/dudk/console/signal"
)

// ErrUnknownFormat is returned when output format can't be derived from
// the file name.
var ErrUnknownFormat = errors.New("unknown output format")

type renderCommand struct {
	*app
	out      string
	length   time.Duration
	bitDepth int
	bitRate  int
	quality  int
}

func (a *app) renderCommand() *cobra.Command {
	rc := &renderCommand{app: a}
	cmd := &cobra.Command{
		Use:   "render CONFIG",
		Short: "Render master output of the session into wav or mp3 file",
		Args:  cobra.ExactArgs(1),
		RunE:  rc.run,
	}
	cmd.Flags().StringVarP(&rc.out, "out", "o", "", "output file, .wav or .mp3 (required)")
	cmd.Flags().DurationVarP(&rc.length, "length", "l", 10*time.Second, "length of rendered audio")
	cmd.Flags().IntVar(&rc.bitDepth, "bit-depth", 16, "wav bit depth, 16 or 24")
	cmd.Flags().IntVar(&rc.bitRate, "bit-rate", 192, "mp3 bit rate")
	cmd.Flags().IntVar(&rc.quality, "quality", 2, "mp3 encoding quality from 0 (best) to 9")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (rc *renderCommand) run(cmd *cobra.Command, args []string) error {
	c, err := session.LoadConfig(args[0])
	if err != nil {
		return err
	}
	channels := c.Master.Outputs
	if channels <= 0 {
		channels = 2
	}
	sink, err := rc.sink(c.SampleRate, channels)
	if err != nil {
		return err
	}
	in, err := rc.open(cmd.Context(), c, "dummy")
	if err != nil {
		return errors.Join(err, sink.Close())
	}
	if err := in.engine.Start(); err != nil {
		return errors.Join(err, sink.Close(), in.close())
	}
	frames := int64(rc.length.Seconds() * float64(c.SampleRate))
	rc.logger.Debugf("render %d frames into %s", frames, rc.out)
	err = export.Render(cmd.Context(), in.engine, in.session, sink, frames)
	if err := errors.Join(err, in.close()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %v into %s\n", rc.length, rc.out)
	return nil
}

func (rc *renderCommand) sink(sampleRate, channels int) (export.Sink, error) {
	switch strings.ToLower(filepath.Ext(rc.out)) {
	case ".wav":
		return export.NewWav(rc.out, sampleRate, channels, signal.BitDepth(rc.bitDepth))
	case ".mp3":
		return mp3.NewSink(rc.out, sampleRate, channels, rc.bitRate, rc.quality)
	}
	return nil, fmt.Errorf("%s: %w", rc.out, ErrUnknownFormat)
}
