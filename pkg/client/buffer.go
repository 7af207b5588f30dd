// ABOUTME: Acquire/release buffer protocol for render and capture streams
// ABOUTME: Enforces a single outstanding acquisition per client
package client

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/ring"
)

// GetRenderBuffer returns a writable view of n frames. The view stays
// valid until ReleaseRenderBuffer.
func (c *Client) GetRenderBuffer(n int) (ring.View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return nil, err
	}
	if c.dir != device.Render {
		return nil, ErrWrongDirection
	}
	if c.acquired != nil {
		return nil, fmt.Errorf("%w: render buffer already acquired", ErrOrdering)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %d frames", ErrInvalidSize, n)
	}
	if c.ring.Held()+n > c.ring.Capacity() {
		return nil, fmt.Errorf("%w: padding %d + %d > buffer %d", ErrCapacity, c.ring.Held(), n, c.ring.Capacity())
	}

	v, err := c.ring.Acquire(n)
	if err != nil {
		return nil, err
	}
	c.acquired = v
	c.acquiredFrames = n
	return v, nil
}

// ReleaseRenderBuffer commits the first n frames of the acquired view.
// BufferFlagSilent replaces them with silence first. Releasing zero frames
// only ends the acquisition.
func (c *Client) ReleaseRenderBuffer(n int, flags BufferFlags) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return err
	}
	if c.dir != device.Render {
		return ErrWrongDirection
	}
	if c.acquired == nil {
		return fmt.Errorf("%w: no render buffer acquired", ErrOrdering)
	}
	if n < 0 || n > c.acquiredFrames {
		return fmt.Errorf("%w: release %d of %d frames", ErrInvalidSize, n, c.acquiredFrames)
	}

	if n > 0 {
		if flags&BufferFlagSilent != 0 {
			ring.Fill(c.acquired, c.format.FrameSize(), n, c.format.Silence())
		}
		if err := c.ring.Commit(c.acquired, n); err != nil {
			return err
		}
		c.writtenFrames += uint64(n)
	}

	c.acquired = nil
	c.acquiredFrames = 0
	return nil
}

// GetCaptureBuffer hands out every buffered frame as one packet. With
// nothing buffered it returns StatusBufferEmpty and no acquisition is made.
func (c *Client) GetCaptureBuffer() (CapturePacket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return CapturePacket{}, err
	}
	if c.dir != device.Capture {
		return CapturePacket{}, ErrWrongDirection
	}
	if c.acquired != nil {
		return CapturePacket{}, fmt.Errorf("%w: capture buffer already acquired", ErrOrdering)
	}

	now := time.Now()
	held := c.ring.Held()
	if held == 0 {
		return CapturePacket{Status: StatusBufferEmpty, DevicePosition: c.readTotalFrames, Time: now}, nil
	}

	v, err := c.ring.Peek(held)
	if err != nil {
		return CapturePacket{}, err
	}

	pkt := CapturePacket{
		View:           v,
		Frames:         held,
		Status:         StatusOK,
		DevicePosition: c.readTotalFrames,
		Time:           now,
	}
	if c.discontinuity {
		pkt.Flags |= BufferFlagDataDiscontinuity
		c.discontinuity = false
	}

	c.acquired = v
	c.acquiredFrames = held
	return pkt, nil
}

// ReleaseCaptureBuffer consumes the packet. n must be zero, which keeps the
// frames for the next packet, or the full packet size.
func (c *Client) ReleaseCaptureBuffer(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return err
	}
	if c.dir != device.Capture {
		return ErrWrongDirection
	}
	if c.acquired == nil {
		return fmt.Errorf("%w: no capture buffer acquired", ErrOrdering)
	}
	if n != 0 && n != c.acquiredFrames {
		return fmt.Errorf("%w: release %d of %d frames", ErrInvalidSize, n, c.acquiredFrames)
	}

	if n > 0 {
		if err := c.ring.Consume(n); err != nil {
			return err
		}
		c.readTotalFrames += uint64(n)
	}

	c.acquired = nil
	c.acquiredFrames = 0
	return nil
}

// NextPacketSize returns the frames the next GetCaptureBuffer would hand out
func (c *Client) NextPacketSize() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initialized(); err != nil {
		return 0, err
	}
	if c.dir != device.Capture {
		return 0, ErrWrongDirection
	}
	return c.ring.Held(), nil
}
