// ABOUTME: play command
// ABOUTME: Decodes a WAV or MP3 file and renders it, optionally under the stream monitor
package cmd

import (
	"context"
	"path/filepath"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// defaultTUILog receives logs while the monitor owns the terminal
const defaultTUILog = "resonate-engine.log"

func playCommand(a *app) *cobra.Command {
	var tui bool

	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play a WAV, MP3 or Opus file",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// keep log lines out of the alternate screen
			if tui && a.settings.Log.File == "" {
				a.settings.Log.File = defaultTUILog
				out, closer, err := a.settings.LogOutput(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				a.logCloser = closer
				return a.settings.ConfigureLogging(out)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context) error {
				return a.play(ctx, args[0], tui)
			})
		},
	}

	cmd.Flags().BoolVar(&tui, "tui", false, "Show the stream monitor")
	return cmd
}

func (a *app) play(ctx context.Context, path string, tui bool) error {
	src, err := decode.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	m, err := a.manager()
	if err != nil {
		return err
	}
	defer m.Close()

	s, err := a.openStream(m, device.Render, src.Format())
	if err != nil {
		return err
	}
	defer s.Close()

	var feed decode.Source = src
	if s.format != src.Format() {
		feed, err = decode.NewConverter(src, s.format)
		if err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"file":   path,
		"source": src.Format(),
		"stream": s.format,
	}).Info("Playing file")

	if !tui {
		return s.render(ctx, feed)
	}
	return a.monitor(ctx, m, s, filepath.Base(path), func(ctx context.Context) error {
		return s.render(ctx, feed)
	})
}
