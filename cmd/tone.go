// ABOUTME: tone command
// ABOUTME: Renders a generated sine tone through an event-driven stream
package cmd

import (
	"context"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func toneCommand(a *app) *cobra.Command {
	var (
		frequency float64
		duration  time.Duration
		format    formatFlags
	)

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a sine tone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context) error {
				return a.playTone(ctx, format.format(), frequency, duration)
			})
		},
	}

	cmd.Flags().Float64Var(&frequency, "frequency", decode.DefaultToneFrequency, "Tone frequency in Hz")
	cmd.Flags().DurationVar(&duration, "duration", 3*time.Second, "Tone length")
	format.register(cmd, audio.Format{Encoding: audio.EncodingPCM, SampleRate: 48000, Channels: 2, BitDepth: 16})

	return cmd
}

func (a *app) playTone(ctx context.Context, want audio.Format, frequency float64, duration time.Duration) error {
	m, err := a.manager()
	if err != nil {
		return err
	}
	defer m.Close()

	s, err := a.openStream(m, device.Render, want)
	if err != nil {
		return err
	}
	defer s.Close()

	src, err := decode.NewTone(s.format, frequency, duration)
	if err != nil {
		return err
	}
	defer src.Close()

	logrus.WithFields(logrus.Fields{
		"frequency": frequency,
		"duration":  duration,
	}).Info("Playing tone")

	return s.render(ctx, src)
}
