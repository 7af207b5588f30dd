// ABOUTME: Tests for client lifecycle and the render scenario
// ABOUTME: Covers initialize validation, start/stop/reset and period draining
package client

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderScenario(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{})
	c := newClient(t, m, device.Render)

	require.NoError(t, c.Initialize(ShareModeShared, 0, 30*time.Millisecond, 10*time.Millisecond, cd16, uuid.Nil))

	size, err := c.BufferSize()
	require.NoError(t, err)
	assert.Equal(t, 1323, size)

	latency, err := c.StreamLatency()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, latency)

	require.NoError(t, c.Start())
	time.Sleep(25 * time.Millisecond)

	padding, err := c.CurrentPadding()
	require.NoError(t, err)
	assert.Equal(t, 0, padding)
	assert.Equal(t, 0, simOf(c).Stats().Writes, "idle stream must not write")

	// hold the pump off so the padding can be observed before it drains
	simOf(c).blocked.Store(true)
	writeFrames(t, c, 200, 1)

	padding, err = c.CurrentPadding()
	require.NoError(t, err)
	assert.Equal(t, 200, padding)

	_, err = c.GetRenderBuffer(2000)
	assert.ErrorIs(t, err, ErrCapacity)

	simOf(c).blocked.Store(false)
	assert.Eventually(t, func() bool {
		p, err := c.CurrentPadding()
		return err == nil && p == 0
	}, time.Second, 5*time.Millisecond)
	assert.Positive(t, simOf(c).Stats().Writes)

	require.NoError(t, c.Stop())
}

func TestCapacityRejectedRegardlessOfPadding(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})
	c := newClient(t, m, device.Render)
	require.NoError(t, c.Initialize(ShareModeShared, 0, 30*time.Millisecond, 0, cd16, uuid.Nil))

	_, err := c.GetRenderBuffer(2000)
	assert.ErrorIs(t, err, ErrCapacity)

	writeFrames(t, c, 1300, 0)
	_, err = c.GetRenderBuffer(24)
	assert.ErrorIs(t, err, ErrCapacity)

	v, err := c.GetRenderBuffer(23)
	require.NoError(t, err)
	assert.Equal(t, 23, v.Frames())
	require.NoError(t, c.ReleaseRenderBuffer(23, 0))
}

func TestOrderingEnforced(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})
	c := newClient(t, m, device.Render)
	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil))

	assert.ErrorIs(t, c.ReleaseRenderBuffer(0, 0), ErrOrdering)

	_, err := c.GetRenderBuffer(10)
	require.NoError(t, err)
	_, err = c.GetRenderBuffer(10)
	assert.ErrorIs(t, err, ErrOrdering)

	assert.ErrorIs(t, c.ReleaseRenderBuffer(11, 0), ErrInvalidSize)
	require.NoError(t, c.ReleaseRenderBuffer(10, 0))
	assert.ErrorIs(t, c.ReleaseRenderBuffer(10, 0), ErrOrdering)

	padding, err := c.CurrentPadding()
	require.NoError(t, err)
	assert.Equal(t, 10, padding)
}

func TestZeroFrameReleaseOnlyClearsMarker(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})
	c := newClient(t, m, device.Render)
	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil))

	_, err := c.GetRenderBuffer(100)
	require.NoError(t, err)
	require.NoError(t, c.ReleaseRenderBuffer(0, 0))

	padding, err := c.CurrentPadding()
	require.NoError(t, err)
	assert.Equal(t, 0, padding)

	_, err = c.GetRenderBuffer(0)
	require.NoError(t, err)
	require.NoError(t, c.ReleaseRenderBuffer(0, 0))
}

func TestLifecycleErrors(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})
	c := newClient(t, m, device.Render)

	_, err := c.BufferSize()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.CurrentPadding()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, c.Start(), ErrNotInitialized)
	assert.ErrorIs(t, c.Reset(), ErrNotInitialized)
	_, err = c.GetRenderBuffer(1)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, _, err = c.Position()
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil))
	assert.ErrorIs(t, c.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil), ErrAlreadyInitialized)

	require.NoError(t, c.Stop(), "stopping a stopped stream succeeds")
	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrNotStopped)
	assert.ErrorIs(t, c.Reset(), ErrNotStopped)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())

	_, err = c.GetRenderBuffer(5)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Reset(), ErrOrdering)
	require.NoError(t, c.ReleaseRenderBuffer(5, 0))
	require.NoError(t, c.Reset())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err = c.BufferSize()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil), ErrClosed)
}

func TestSharedModeForcesDefaultPeriod(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		period   time.Duration
		wantSize int
	}{
		{"short duration raised to three periods", 5 * time.Millisecond, 100 * time.Millisecond, 1323},
		{"requested duration kept", 100 * time.Millisecond, 0, 4410},
		{"duration capped at device maximum", time.Hour, 0, 88200},
		{"largest duration capped", time.Duration(math.MaxInt64), 0, 88200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})
			c := newClient(t, m, device.Render)

			require.NoError(t, c.Initialize(ShareModeShared, 0, tt.duration, tt.period, cd16, uuid.Nil))

			latency, err := c.StreamLatency()
			require.NoError(t, err)
			assert.Equal(t, 10*time.Millisecond, latency)

			size, err := c.BufferSize()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, size)
		})
	}
}

func TestExclusiveModeValidation(t *testing.T) {
	tests := []struct {
		name     string
		flags    StreamFlags
		duration time.Duration
		period   time.Duration
		wantErr  error
		wantSize int
	}{
		{"default period", 0, 20 * time.Millisecond, 0, nil, 882},
		{"short duration raised to period", 0, time.Millisecond, 10 * time.Millisecond, nil, 441},
		{"period below minimum", 0, 20 * time.Millisecond, time.Millisecond, ErrInvalidPeriod, 0},
		{"period above maximum", 0, 2 * time.Second, time.Second, ErrInvalidPeriod, 0},
		{"duration above maximum", 0, 3 * time.Second, 10 * time.Millisecond, ErrInvalidPeriod, 0},
		{"event duration differs", StreamFlagEventCallback, 20 * time.Millisecond, 10 * time.Millisecond, ErrInvalidPeriod, 0},
		{"event duration equals period", StreamFlagEventCallback, 10 * time.Millisecond, 10 * time.Millisecond, nil, 441},
		{"unknown flag", StreamFlags(1 << 20), 10 * time.Millisecond, 10 * time.Millisecond, ErrInvalidArgument, 0},
		{"only the event flag is defined", StreamFlagEventCallback << 1, 10 * time.Millisecond, 10 * time.Millisecond, ErrInvalidArgument, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})
			c := newClient(t, m, device.Render)

			err := c.Initialize(ShareModeExclusive, tt.flags, tt.duration, tt.period, cd16, uuid.Nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				_, err = c.BufferSize()
				assert.ErrorIs(t, err, ErrNotInitialized)
				return
			}
			require.NoError(t, err)
			size, err := c.BufferSize()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, size)
		})
	}
}

func TestInitializeRejectsNonExactFormats(t *testing.T) {
	caps := device.DefaultCaps()
	caps.Encodings = []audio.Encoding{audio.EncodingPCM}
	m, _ := newTestManager(t, Config{}, device.SimConfig{Caps: caps, Rates: []int{48000}, Manual: true})

	c := newClient(t, m, device.Render)
	float := audio.Format{Encoding: audio.EncodingFloat, SampleRate: 48000, Channels: 2, BitDepth: 32}
	assert.ErrorIs(t, c.Initialize(ShareModeShared, 0, 0, 0, float, uuid.Nil), ErrUnsupportedFormat)

	// 44100 would be snapped to 48000
	assert.ErrorIs(t, c.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil), ErrUnsupportedFormat)

	s48 := cd16
	s48.SampleRate = 48000
	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, s48, uuid.Nil))
}

type brokenConfigure struct {
	*device.Simulated
}

func (b brokenConfigure) Configure(audio.Format) (audio.Format, error) {
	return audio.Format{}, errors.New("EIO")
}

func TestDeviceFailuresInvalidate(t *testing.T) {
	opener := &testOpener{failure: errors.New("no such device")}
	m, err := NewManager(Config{}, opener)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.NewClient("card9", device.Render)
	assert.ErrorIs(t, err, ErrDeviceInvalidated)

	m2, err := NewManager(Config{}, device.OpenerFunc(func(id string, dir device.Direction) (device.Device, error) {
		return brokenConfigure{device.NewSimulated(id, dir, device.SimConfig{Manual: true})}, nil
	}))
	require.NoError(t, err)
	defer m2.Close()

	c, err := m2.NewClient("card0", device.Render)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil), ErrDeviceInvalidated)
}

func TestEventDrivenStream(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})

	polled := newClient(t, m, device.Render)
	require.NoError(t, polled.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil))
	assert.ErrorIs(t, polled.SetEventHandle(NewEvent()), ErrEventHandleNotExpected)

	c := newClient(t, m, device.Render)
	require.NoError(t, c.Initialize(ShareModeExclusive, StreamFlagEventCallback, 10*time.Millisecond, 10*time.Millisecond, cd16, uuid.Nil))
	assert.ErrorIs(t, c.Start(), ErrEventHandleMissing)
	assert.ErrorIs(t, c.SetEventHandle(nil), ErrInvalidArgument)

	ev := NewEvent()
	require.NoError(t, c.SetEventHandle(ev))
	require.NoError(t, c.Start())

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := ev.Wait(ctx)
		cancel()
		require.NoError(t, err)
	}

	require.NoError(t, c.Stop())
}

func TestEventSignalCoalesces(t *testing.T) {
	ev := NewEvent()
	ev.Signal()
	ev.Signal()

	require.NoError(t, ev.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ev.Wait(ctx), context.DeadlineExceeded)
}

func TestStopJoinsCallback(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{})
	c := newClient(t, m, device.Render)
	require.NoError(t, c.Initialize(ShareModeExclusive, 0, 100*time.Millisecond, 5*time.Millisecond, cd16, uuid.Nil))

	writeFrames(t, c, 2000, 1)
	require.NoError(t, c.Start())
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Stop())

	writes := simOf(c).Stats().Writes
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, writes, simOf(c).Stats().Writes, "pump ran after Stop returned")
}

func TestRenderWrapThroughClient(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})
	c := newClient(t, m, device.Render)

	// 10ms at 8kHz gives an 80 frame ring
	require.NoError(t, c.Initialize(ShareModeExclusive, 0, 10*time.Millisecond, 10*time.Millisecond, mono16, uuid.Nil))

	writeFrames(t, c, 70, 0)
	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		p, err := c.CurrentPadding()
		return err == nil && p == 0
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	v, err := c.GetRenderBuffer(20)
	require.NoError(t, err)
	b := v.Bytes()
	for i := range b {
		b[i] = byte(i)
	}
	require.NoError(t, c.ReleaseRenderBuffer(20, 0))

	first, second, err := c.ring.ReadSegments(20)
	require.NoError(t, err)
	assert.Len(t, first, 20)
	assert.Len(t, second, 20)
	assert.Equal(t, b, append(append([]byte{}, first...), second...))
}

func TestSilentRelease(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})
	c := newClient(t, m, device.Render)

	u8 := audio.Format{Encoding: audio.EncodingPCM, SampleRate: 8000, Channels: 1, BitDepth: 8}
	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, u8, uuid.Nil))

	v, err := c.GetRenderBuffer(4)
	require.NoError(t, err)
	copy(v.Bytes(), []byte{1, 2, 3, 4})
	require.NoError(t, c.ReleaseRenderBuffer(4, BufferFlagSilent))

	first, _, err := c.ring.ReadSegments(4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x80, 0x80, 0x80}, first)
}

func TestDirectionChecks(t *testing.T) {
	m, _ := newTestManager(t, Config{}, device.SimConfig{Manual: true})

	r := newClient(t, m, device.Render)
	require.NoError(t, r.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil))
	_, err := r.GetCaptureBuffer()
	assert.ErrorIs(t, err, ErrWrongDirection)
	_, err = r.NextPacketSize()
	assert.ErrorIs(t, err, ErrWrongDirection)

	c := newClient(t, m, device.Capture)
	require.NoError(t, c.Initialize(ShareModeShared, 0, 0, 0, cd16, uuid.Nil))
	_, err = c.GetRenderBuffer(1)
	assert.ErrorIs(t, err, ErrWrongDirection)
}
