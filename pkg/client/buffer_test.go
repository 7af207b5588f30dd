// ABOUTME: Tests for the buffer protocol
// ABOUTME: Covers capture packets and device overruns
package client

import (
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(p []byte) {
	for i := range p {
		p[i] = 0x5A
	}
}

func startUntil(t *testing.T, c *Client, cond func() bool) {
	t.Helper()
	require.NoError(t, c.Start())
	require.Eventually(t, cond, time.Second, 2*time.Millisecond)
	require.NoError(t, c.Stop())
}

func packetSize(c *Client, want int) func() bool {
	return func() bool {
		n, err := c.NextPacketSize()
		return err == nil && n == want
	}
}

func TestCapturePackets(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true, Generator: pattern})
	c := newClient(t, m, device.Capture)

	// 30ms at 8kHz gives a 240 frame ring
	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, mono16, uuid.Nil))

	pkt, err := c.GetCaptureBuffer()
	require.NoError(t, err)
	assert.Equal(t, StatusBufferEmpty, pkt.Status)
	assert.Nil(t, pkt.View)
	assert.ErrorIs(t, c.ReleaseCaptureBuffer(0), ErrOrdering, "empty packet is not an acquisition")

	simOf(c).Advance(100)
	startUntil(t, c, packetSize(c, 100))

	pkt, err = c.GetCaptureBuffer()
	require.NoError(t, err)
	assert.Equal(t, StatusOK, pkt.Status)
	assert.Equal(t, 100, pkt.Frames)
	assert.Equal(t, uint64(0), pkt.DevicePosition)
	assert.Zero(t, pkt.Flags)
	require.Len(t, pkt.View.Bytes(), 200)
	assert.Equal(t, byte(0x5A), pkt.View.Bytes()[199])

	_, err = c.GetCaptureBuffer()
	assert.ErrorIs(t, err, ErrOrdering)

	assert.ErrorIs(t, c.ReleaseCaptureBuffer(50), ErrInvalidSize)
	require.NoError(t, c.ReleaseCaptureBuffer(0))

	pkt, err = c.GetCaptureBuffer()
	require.NoError(t, err)
	assert.Equal(t, 100, pkt.Frames, "zero release keeps the frames")
	require.NoError(t, c.ReleaseCaptureBuffer(100))

	pos, _, err := c.Position()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), pos)
}

func TestCaptureFullRingKeepsDeviceData(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true, Generator: pattern})
	c := newClient(t, m, device.Capture)
	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, mono16, uuid.Nil))

	simOf(c).Advance(300)
	startUntil(t, c, packetSize(c, 240))

	pkt, err := c.GetCaptureBuffer()
	require.NoError(t, err)
	assert.Equal(t, 240, pkt.Frames)
	assert.Zero(t, pkt.Flags&BufferFlagDataDiscontinuity, "nothing was lost")
	require.NoError(t, c.ReleaseCaptureBuffer(240))

	startUntil(t, c, packetSize(c, 60))

	pkt, err = c.GetCaptureBuffer()
	require.NoError(t, err)
	assert.Equal(t, 60, pkt.Frames)
	assert.Equal(t, uint64(240), pkt.DevicePosition)
	assert.Zero(t, pkt.Flags&BufferFlagDataDiscontinuity)
	require.NoError(t, c.ReleaseCaptureBuffer(0))

	pos, _, err := c.Position()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), pos)
}

func TestCaptureOverrunMarksDiscontinuity(t *testing.T) {
	// a 256 frame device fifo
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true, Generator: pattern, FragmentFrames: 32, Fragments: 8})
	c := newClient(t, m, device.Capture)
	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, mono16, uuid.Nil))

	simOf(c).Advance(300)
	assert.Equal(t, 44*mono16.FrameSize(), simOf(c).Stats().Overruns)
	startUntil(t, c, packetSize(c, 240))

	pkt, err := c.GetCaptureBuffer()
	require.NoError(t, err)
	assert.Equal(t, 240, pkt.Frames)
	assert.NotZero(t, pkt.Flags&BufferFlagDataDiscontinuity)
	require.NoError(t, c.ReleaseCaptureBuffer(240))

	startUntil(t, c, packetSize(c, 16))

	pkt, err = c.GetCaptureBuffer()
	require.NoError(t, err)
	assert.Equal(t, 16, pkt.Frames)
	assert.Zero(t, pkt.Flags&BufferFlagDataDiscontinuity, "flag is reported once")
	require.NoError(t, c.ReleaseCaptureBuffer(0))
}

func TestCaptureSkipsWhenSpaceUnavailable(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true, Generator: pattern})
	c := newClient(t, m, device.Capture)
	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, mono16, uuid.Nil))

	simOf(c).Advance(50)
	simOf(c).blocked.Store(true)

	require.NoError(t, c.Start())
	time.Sleep(30 * time.Millisecond)
	n, err := c.NextPacketSize()
	require.NoError(t, err)
	assert.Zero(t, n)

	simOf(c).blocked.Store(false)
	require.Eventually(t, packetSize(c, 50), time.Second, 2*time.Millisecond)
	require.NoError(t, c.Stop())
}
