// ABOUTME: Stream volume and format queries of a client
// ABOUTME: Per-channel stream levels kept apart from the shared session levels
package client

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/negotiate"
	"github.com/Resonate-Protocol/resonate-engine/pkg/session"
)

// ChannelCount returns the number of stream volume channels
func (c *Client) ChannelCount() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return 0, err
	}
	return len(c.volumes), nil
}

// SetChannelVolume sets the stream level of one channel in [0,1]
func (c *Client) SetChannelVolume(index int, level float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return err
	}
	if index < 0 || index >= len(c.volumes) || level < 0 || level > 1 {
		return fmt.Errorf("%w: channel %d level %v", ErrInvalidArgument, index, level)
	}
	c.volumes[index] = level
	return nil
}

// ChannelVolume returns the stream level of one channel
func (c *Client) ChannelVolume(index int) (float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return 0, err
	}
	if index < 0 || index >= len(c.volumes) {
		return 0, fmt.Errorf("%w: channel %d", ErrInvalidArgument, index)
	}
	return c.volumes[index], nil
}

// SetAllVolumes sets every stream channel level at once
func (c *Client) SetAllVolumes(levels []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return err
	}
	if len(levels) != len(c.volumes) {
		return fmt.Errorf("%w: %d levels for %d channels", ErrInvalidArgument, len(levels), len(c.volumes))
	}
	for _, l := range levels {
		if l < 0 || l > 1 {
			return fmt.Errorf("%w: level %v", ErrInvalidArgument, l)
		}
	}
	copy(c.volumes, levels)
	return nil
}

// AllVolumes returns a copy of the stream channel levels
func (c *Client) AllVolumes() ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return nil, err
	}
	return append([]float32(nil), c.volumes...), nil
}

// Session returns the handle of the session the stream joined
func (c *Client) Session() (*session.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return nil, err
	}
	return c.session, nil
}

// IsFormatSupported asks whether the device could run f without disturbing
// this stream. Exclusive mode never offers a correction.
func (c *Client) IsFormatSupported(mode ShareMode, f audio.Format) (negotiate.Result, error) {
	c.mu.Lock()
	closed := c.state == stateClosed
	c.mu.Unlock()
	if closed {
		return negotiate.Result{}, ErrClosed
	}

	exclusive := mode == ShareModeExclusive
	res, err := c.manager.probe(c.deviceID, c.dir, exclusive, f)
	if err != nil {
		return res, err
	}
	if exclusive && res.Verdict == negotiate.Corrected {
		return negotiate.Result{Verdict: negotiate.Unsupported}, fmt.Errorf("%w: exclusive mode needs %s exactly", ErrUnsupportedFormat, f)
	}
	return res, nil
}

// MixFormat returns the device default shared-mode format
func (c *Client) MixFormat() (audio.Format, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return audio.Format{}, ErrClosed
	}
	return negotiate.MixFormat(c.dev.Caps()), nil
}

// DevicePeriod returns the default and minimum device periods
func (c *Client) DevicePeriod() (defaultPeriod, minimumPeriod time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return 0, 0, ErrClosed
	}
	caps := c.dev.Caps()
	return caps.DefaultPeriod, caps.MinimumPeriod, nil
}
