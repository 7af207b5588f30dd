// ABOUTME: Stream helpers shared by the render and capture commands
// ABOUTME: Negotiates a format, initializes an event-driven stream and feeds it from a source
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/negotiate"
	"github.com/Resonate-Protocol/resonate-engine/pkg/client"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// drainSlack is added to the buffer duration while waiting for the tail to play
const drainSlack = 2 * time.Second

// stream is an initialized event-driven client
type stream struct {
	client *client.Client
	event  client.Event
	format audio.Format
	size   int
}

// openStream creates a client on the configured device and negotiates want.
// A corrected format is adopted; the caller converts its source if needed.
func (a *app) openStream(m *client.Manager, dir device.Direction, want audio.Format) (*stream, error) {
	c, err := m.NewClient(a.settings.Device, dir)
	if err != nil {
		return nil, err
	}

	s, err := a.initStream(c, want)
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func (a *app) initStream(c *client.Client, want audio.Format) (*stream, error) {
	mode := a.settings.ShareMode()

	res, err := c.IsFormatSupported(mode, want)
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", want, err)
	}
	format := want
	if res.Verdict == negotiate.Corrected {
		logrus.WithFields(logrus.Fields{
			"requested": want,
			"accepted":  res.Format,
		}).Info("Device corrected stream format")
		format = res.Format
	}

	duration := a.settings.Engine.Buffer
	var period time.Duration
	if mode == client.ShareModeExclusive {
		period = duration
	}

	if err := c.Initialize(mode, client.StreamFlagEventCallback, duration, period, format, uuid.Nil); err != nil {
		return nil, fmt.Errorf("error initializing stream: %w", err)
	}

	ev := client.NewEvent()
	if err := c.SetEventHandle(ev); err != nil {
		return nil, err
	}

	size, err := c.BufferSize()
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"device":    c.DeviceID(),
		"direction": c.Direction(),
		"mode":      mode,
		"format":    format,
		"frames":    size,
	}).Info("Stream initialized")

	return &stream{client: c, event: ev, format: format, size: size}, nil
}

// fill copies whole frames from src into the free part of the render buffer.
// It returns io.EOF once src is exhausted and nothing more was written.
func (s *stream) fill(src decode.Source) (int, error) {
	padding, err := s.client.CurrentPadding()
	if err != nil {
		return 0, err
	}
	free := s.size - padding
	if free <= 0 {
		return 0, nil
	}

	view, err := s.client.GetRenderBuffer(free)
	if err != nil {
		return 0, err
	}

	buf := view.Bytes()
	fs := s.format.FrameSize()
	n := 0
	var readErr error
	for n < len(buf) {
		var read int
		read, readErr = src.Read(buf[n:])
		n += read
		if readErr != nil {
			break
		}
		if read == 0 {
			break
		}
	}

	frames := n / fs
	if err := s.client.ReleaseRenderBuffer(frames, 0); err != nil {
		return 0, err
	}

	return frames, readErr
}

// render plays src to completion or until ctx is done
func (s *stream) render(ctx context.Context, src decode.Source) error {
	var written uint64

	frames, err := s.fill(src)
	written += uint64(frames)
	eof := errors.Is(err, io.EOF)
	if err != nil && !eof {
		return err
	}

	if err := s.client.Start(); err != nil {
		return err
	}
	defer s.client.Stop()

	for !eof {
		if err := s.event.Wait(ctx); err != nil {
			return err
		}
		frames, err := s.fill(src)
		written += uint64(frames)
		if errors.Is(err, io.EOF) {
			eof = true
		} else if err != nil {
			return err
		}
	}

	return s.drain(ctx, written)
}

// drain waits until the device position reaches written
func (s *stream) drain(ctx context.Context, written uint64) error {
	timeout := s.format.DurationOf(s.size) + drainSlack
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		pos, _, err := s.client.Position()
		if err != nil {
			return err
		}
		if pos >= written {
			logrus.WithField("frames", written).Debug("Stream drained")
			return nil
		}
		if err := s.event.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				logrus.WithFields(logrus.Fields{
					"position": pos,
					"written":  written,
				}).Warn("Timed out draining stream")
				return nil
			}
			return err
		}
	}
}

// capture hands every packet to sink until frames were captured or ctx is done
func (s *stream) capture(ctx context.Context, frames uint64, sink io.Writer) (uint64, error) {
	if err := s.client.Start(); err != nil {
		return 0, err
	}
	defer s.client.Stop()

	fs := s.format.FrameSize()
	var total uint64
	for total < frames {
		if err := s.event.Wait(ctx); err != nil {
			return total, err
		}

		for total < frames {
			pkt, err := s.client.GetCaptureBuffer()
			if err != nil {
				return total, err
			}
			if pkt.Status == client.StatusBufferEmpty {
				break
			}
			if pkt.Flags&client.BufferFlagDataDiscontinuity != 0 {
				logrus.WithField("position", pkt.DevicePosition).Warn("Captured data was dropped")
			}

			n := pkt.Frames
			if remaining := frames - total; uint64(n) > remaining {
				n = int(remaining)
			}
			if _, err := sink.Write(pkt.View.Bytes()[:n*fs]); err != nil {
				s.client.ReleaseCaptureBuffer(0)
				return total, err
			}
			total += uint64(n)

			if err := s.client.ReleaseCaptureBuffer(pkt.Frames); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Close releases the client
func (s *stream) Close() error {
	return s.client.Close()
}
