// ABOUTME: Stream monitor wiring between a render stream and the TUI
// ABOUTME: Publishes clock and xrun status and applies volume changes to the session
package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/internal/ui"
	"github.com/Resonate-Protocol/resonate-engine/pkg/client"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const statusInterval = 200 * time.Millisecond

// monitor runs play while the TUI shows the stream. Quitting the TUI stops
// playback and the TUI exits once playback ends.
func (a *app) monitor(ctx context.Context, m *client.Manager, s *stream, name string, play func(ctx context.Context) error) error {
	ctrl := ui.NewVolumeControl()
	p, err := ui.Run(ctrl)
	if err != nil {
		return err
	}

	sess, err := s.client.Session()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		p.Quit()
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ctrl.Quit:
				cancel()
				return nil
			case change := <-ctrl.Changes:
				if err := sess.SetMasterVolume(float32(change.Volume) / 100); err != nil {
					logrus.WithError(err).Warn("Failed to set session volume")
				}
				if err := sess.SetMute(change.Muted); err != nil {
					logrus.WithError(err).Warn("Failed to set session mute")
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()

		p.Send(streamStatus(m, s, name, true))
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				p.Send(streamStatus(m, s, name, false))
			}
		}
	})

	g.Go(func() error {
		defer cancel()
		return play(ctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// streamStatus snapshots the stream for the monitor. The first message also
// carries the static stream description and the session volume.
func streamStatus(m *client.Manager, s *stream, name string, first bool) ui.StatusMsg {
	c := s.client
	msg := ui.StatusMsg{
		State:     "Playing",
		Underruns: m.Metrics().Underruns(c.DeviceID()),
		Overflows: m.Metrics().Overflows(c.DeviceID()),
	}

	padding, err := c.CurrentPadding()
	if err == nil {
		pos, _, err := c.Position()
		if err == nil {
			msg.Clock = &ui.ClockStatus{Padding: padding, Position: pos}
		}
	}

	if first {
		msg.Device = c.DeviceID()
		msg.Direction = c.Direction().String()
		msg.Format = s.format.String()
		msg.Source = name
		msg.SampleRate = s.format.SampleRate
		msg.BufferFrames = s.size

		if sess, err := c.Session(); err == nil {
			if level, err := sess.MasterVolume(); err == nil {
				volume := int(level*100 + 0.5)
				msg.Volume = &volume
			}
			if muted, err := sess.Muted(); err == nil {
				msg.Muted = &muted
			}
		}
	}
	return msg
}
