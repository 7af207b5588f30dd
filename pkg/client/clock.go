// ABOUTME: Stream position clock
// ABOUTME: Reconciles released frames, ring padding and device delay into a monotonic position
package client

import (
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/sirupsen/logrus"
)

// Position returns the stream position in frames together with the local
// time of the query. The position never decreases between calls, except
// after a render Reset which starts again from zero.
func (c *Client) Position() (uint64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return 0, time.Time{}, err
	}

	var pos uint64
	if c.dir == device.Render {
		pos = c.renderPosition()
	} else {
		pos = c.readTotalFrames + uint64(c.ring.Held())
	}

	if pos < c.lastPosition {
		pos = c.lastPosition
	}
	c.lastPosition = pos

	return pos, time.Now(), nil
}

// renderPosition is written - held - device delay (must hold c.mu)
func (c *Client) renderPosition() uint64 {
	held := uint64(c.ring.Held())
	pos := c.writtenFrames - held

	if c.state == stateStarted {
		delay, err := c.dev.OutputDelay()
		if err != nil {
			logrus.WithError(err).WithField("client", c.id).Debug("Output delay query failed, assuming zero")
			delay = 0
		}
		if delay < 0 {
			delay = 0
		}
		if uint64(delay) > pos {
			pos = 0
		} else {
			pos -= uint64(delay)
		}
	}

	if (c.state != stateStarted || held == 0) && pos > c.writtenFrames {
		pos = c.writtenFrames
	}
	return pos
}

// Frequency returns the position units per second, the sample rate
func (c *Client) Frequency() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return 0, err
	}
	return uint64(c.format.SampleRate), nil
}
