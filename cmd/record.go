// ABOUTME: record command
// ABOUTME: Captures from the device into a WAV file
package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func recordCommand(a *app) *cobra.Command {
	var (
		duration time.Duration
		format   formatFlags
	)

	cmd := &cobra.Command{
		Use:   "record <file.wav>",
		Short: "Record from the capture device into a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context) error {
				return a.record(ctx, args[0], format.format(), duration)
			})
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "Recording length")
	format.register(cmd, audio.Format{Encoding: audio.EncodingPCM, SampleRate: 48000, Channels: 2, BitDepth: 16})

	return cmd
}

func (a *app) record(ctx context.Context, path string, want audio.Format, duration time.Duration) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	defer m.Close()

	s, err := a.openStream(m, device.Capture, want)
	if err != nil {
		return err
	}
	defer s.Close()

	sink, err := decode.CreateWAV(path, s.format)
	if err != nil {
		return err
	}

	frames := uint64(s.format.FramesFor(duration))
	logrus.WithFields(logrus.Fields{
		"file":   path,
		"format": s.format,
		"frames": frames,
	}).Info("Recording")

	captured, err := s.capture(ctx, frames, sink)
	// the header is finalized even when interrupted
	if closeErr := sink.Close(); closeErr != nil && (err == nil || errors.Is(err, context.Canceled)) {
		return closeErr
	}

	logrus.WithFields(logrus.Fields{
		"file":   path,
		"frames": captured,
	}).Info("Recording finished")
	return err
}
