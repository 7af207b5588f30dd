// ABOUTME: Audio client lifecycle
// ABOUTME: Initialize, start, stop, reset and the per-period pump callback
package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/negotiate"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/ring"
	"github.com/Resonate-Protocol/resonate-engine/pkg/engine"
	"github.com/Resonate-Protocol/resonate-engine/pkg/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type state int

const (
	stateOpen state = iota
	stateInitialized
	stateStarted
	stateClosed
)

// Client is one audio stream on its own device handle.
//
// Lock order is client before session; the scheduler callback takes the
// client lock, so Stop releases it before joining the callback.
type Client struct {
	mu sync.Mutex

	id       uuid.UUID
	manager  *Manager
	dev      device.Device
	deviceID string
	dir      device.Direction
	state    state

	mode         ShareMode
	flags        StreamFlags
	format       audio.Format
	period       time.Duration
	periodFrames int
	ring         *ring.Ring

	// writtenFrames counts frames released into a render ring;
	// readTotalFrames counts frames released out of a capture ring
	writtenFrames   uint64
	readTotalFrames uint64
	lastPosition    uint64

	session *session.Handle
	volumes []float32
	event   Event

	task    *engine.Task
	render  *engine.RenderPump
	capture *engine.CapturePump

	// acquired is the single outstanding acquisition, nil when none
	acquired       ring.View
	acquiredFrames int
	discontinuity  bool
}

// ID returns the client identifier
func (c *Client) ID() uuid.UUID { return c.id }

// Direction returns the stream direction
func (c *Client) Direction() device.Direction { return c.dir }

// DeviceID returns the id the device was opened with
func (c *Client) DeviceID() string { return c.deviceID }

func (c *Client) initialized() error {
	switch c.state {
	case stateClosed:
		return ErrClosed
	case stateOpen:
		return ErrNotInitialized
	}
	return nil
}

// Initialize configures the stream. Shared streams run at the device
// default period with between three periods and the device maximum of
// buffer; exclusive streams
// are validated against the device period limits.
func (c *Client) Initialize(mode ShareMode, flags StreamFlags, duration, period time.Duration, format audio.Format, sessionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateClosed:
		return ErrClosed
	case stateOpen:
	default:
		return ErrAlreadyInitialized
	}

	if flags&^knownStreamFlags != 0 {
		return fmt.Errorf("%w: stream flags %#x", ErrInvalidArgument, uint32(flags))
	}
	if mode != ShareModeShared && mode != ShareModeExclusive {
		return fmt.Errorf("%w: share mode %d", ErrInvalidArgument, int(mode))
	}
	if duration < 0 || period < 0 {
		return fmt.Errorf("%w: negative duration or period", ErrInvalidArgument)
	}

	caps := c.dev.Caps()
	if mode == ShareModeShared {
		period = caps.DefaultPeriod
		if caps.MaxBufferDuration > 0 && duration > caps.MaxBufferDuration {
			duration = caps.MaxBufferDuration
		}
		if duration < 3*period {
			duration = 3 * period
		}
	} else {
		if period == 0 {
			period = caps.DefaultPeriod
		}
		if period < caps.MinimumPeriod || period > caps.MaximumPeriod {
			return fmt.Errorf("%w: period %v outside [%v, %v]", ErrInvalidPeriod, period, caps.MinimumPeriod, caps.MaximumPeriod)
		}
		if duration > caps.MaxBufferDuration {
			return fmt.Errorf("%w: duration %v above %v", ErrInvalidPeriod, duration, caps.MaxBufferDuration)
		}
		if flags&StreamFlagEventCallback != 0 {
			if duration != period {
				return fmt.Errorf("%w: event-driven duration %v != period %v", ErrInvalidPeriod, duration, period)
			}
		} else if duration < period {
			duration = period
		}
	}

	res, err := negotiate.Propose(c.dev, format, false)
	if err != nil {
		if errors.Is(err, negotiate.ErrUnsupported) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDeviceInvalidated, err)
	}
	if res.Verdict != negotiate.Accepted {
		return fmt.Errorf("%w: device offers %s", ErrUnsupportedFormat, res.Format)
	}

	r, err := ring.New(format.FramesFor(duration), format.FrameSize())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	handle, err := c.manager.sessions.Join(sessionID, c.deviceID, format.Channels)
	if err != nil {
		return fmt.Errorf("failed to join session: %w", err)
	}

	c.mode = mode
	c.flags = flags
	c.format = format
	c.period = period
	c.periodFrames = format.FramesFor(period)
	c.ring = r
	c.session = handle
	c.volumes = make([]float32, format.Channels)
	for i := range c.volumes {
		c.volumes[i] = 1.0
	}

	if c.dir == device.Render {
		c.render = &engine.RenderPump{
			Device:            c.dev,
			Format:            format,
			PeriodFrames:      c.periodFrames,
			HeadroomFragments: c.manager.config.HeadroomFragments,
		}
	} else {
		c.capture = &engine.CapturePump{Device: c.dev, Format: format}
	}
	c.state = stateInitialized

	c.manager.metrics.SetActiveSessions(c.manager.sessions.Len())

	logrus.WithFields(logrus.Fields{
		"client":  c.id,
		"mode":    mode,
		"format":  format.String(),
		"period":  period,
		"buffer":  r.Capacity(),
		"session": sessionID,
		"event":   flags&StreamFlagEventCallback != 0,
	}).Info("Audio client initialized")

	return nil
}

// BufferSize returns the ring capacity in frames
func (c *Client) BufferSize() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return 0, err
	}
	return c.ring.Capacity(), nil
}

// CurrentPadding returns the frames held in the ring
func (c *Client) CurrentPadding() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return 0, err
	}
	return c.ring.Held(), nil
}

// StreamLatency returns the period the engine runs at
func (c *Client) StreamLatency() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return 0, err
	}
	return c.period, nil
}

// Format returns the negotiated stream format
func (c *Client) Format() (audio.Format, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return audio.Format{}, err
	}
	return c.format, nil
}

// SetEventHandle registers the event signalled every period
func (c *Client) SetEventHandle(e Event) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return err
	}
	if c.flags&StreamFlagEventCallback == 0 {
		return ErrEventHandleNotExpected
	}
	c.event = e
	return nil
}

// Start arms the periodic engine for this stream
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return err
	}
	if c.flags&StreamFlagEventCallback != 0 && c.event == nil {
		return ErrEventHandleMissing
	}
	if c.state == stateStarted {
		return ErrNotStopped
	}

	task, err := c.manager.scheduler.Schedule(c.period, c.tick)
	if err != nil {
		return fmt.Errorf("failed to schedule stream: %w", err)
	}
	c.task = task
	c.state = stateStarted

	logrus.WithField("client", c.id).Debug("Audio client started")
	return nil
}

// Stop disarms the engine and waits for an in-flight period to finish.
// Stopping a stopped stream succeeds.
func (c *Client) Stop() error {
	c.mu.Lock()
	if err := c.initialized(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != stateStarted {
		c.mu.Unlock()
		return nil
	}
	task := c.task
	c.task = nil
	c.state = stateInitialized
	c.mu.Unlock()

	task.Cancel()

	logrus.WithField("client", c.id).Debug("Audio client stopped")
	return nil
}

// Reset drops buffered frames. Render streams restart their position at
// zero; capture streams count the dropped frames as read so the position
// keeps increasing.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return err
	}
	if c.state == stateStarted {
		return ErrNotStopped
	}
	if c.acquired != nil {
		return fmt.Errorf("%w: buffer still acquired", ErrOrdering)
	}

	if c.dir == device.Render {
		c.writtenFrames = 0
		c.lastPosition = 0
		c.render.Reset()
	} else {
		c.readTotalFrames += uint64(c.ring.Held())
	}
	c.ring.Reset()
	c.discontinuity = false

	logrus.WithField("client", c.id).Debug("Audio client reset")
	return nil
}

// tick is the scheduler callback, run once per period
func (c *Client) tick() {
	begin := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateStarted {
		return
	}

	m := c.manager.metrics
	if c.dir == device.Render {
		res := c.render.Pump(c.ring, c.mixVolume())
		m.RecordRender(c.deviceID, res.Written, res.Skipped, res.Underrun, time.Since(begin))
	} else {
		res := c.capture.Pump(c.ring)
		if res.Overflow {
			c.discontinuity = true
		}
		m.RecordCapture(c.deviceID, res.Read, res.Skipped, res.Overflow, time.Since(begin))
	}
	m.SetPadding(c.id.String(), c.ring.Held())

	if c.event != nil {
		c.event.Signal()
	}
}

// mixVolume combines session and stream volume (must hold c.mu)
func (c *Client) mixVolume() engine.Volume {
	snap, err := c.session.Snapshot()
	if err != nil {
		return engine.Volume{}
	}
	if snap.Muted {
		return engine.Volume{Muted: true}
	}
	if !c.manager.config.SoftwareVolume {
		return engine.Volume{}
	}

	gains := make([]float32, len(c.volumes))
	for i := range gains {
		gains[i] = snap.Gain(i) * c.volumes[i]
	}
	return engine.Volume{Gains: gains}
}

// Close stops the stream, leaves its session and closes the device
func (c *Client) Close() error {
	_ = c.Stop()

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	c.acquired = nil
	handle := c.session
	c.session = nil
	c.mu.Unlock()

	if handle != nil {
		if err := handle.Release(); err != nil && !errors.Is(err, session.ErrSessionReleased) {
			logrus.WithError(err).Warn("Session release failed")
		}
	}

	err := c.dev.Close()
	c.manager.forget(c)

	logrus.WithField("client", c.id).Debug("Audio client closed")
	return err
}
