// ABOUTME: Shared client test fixtures
// ABOUTME: Gated simulated devices and the opener that hands them out
package client

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	cd16   = audio.Format{Encoding: audio.EncodingPCM, SampleRate: 44100, Channels: 2, BitDepth: 16}
	mono16 = audio.Format{Encoding: audio.EncodingPCM, SampleRate: 8000, Channels: 1, BitDepth: 16}
)

var errGateClosed = errors.New("gate closed")

// gatedDevice is a simulated device whose space queries can be blocked,
// which makes the pump skip periods deterministically
type gatedDevice struct {
	*device.Simulated
	blocked atomic.Bool
}

func (g *gatedDevice) WriteSpace() (device.Space, error) {
	if g.blocked.Load() {
		return device.Space{}, errGateClosed
	}
	return g.Simulated.WriteSpace()
}

func (g *gatedDevice) ReadSpace() (device.Space, error) {
	if g.blocked.Load() {
		return device.Space{}, errGateClosed
	}
	return g.Simulated.ReadSpace()
}

type testOpener struct {
	cfg device.SimConfig

	mu      sync.Mutex
	opened  []*gatedDevice
	failure error
}

func (o *testOpener) Open(id string, dir device.Direction) (device.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.failure != nil {
		return nil, o.failure
	}
	d := &gatedDevice{Simulated: device.NewSimulated(id, dir, o.cfg)}
	o.opened = append(o.opened, d)
	return d, nil
}

func (o *testOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func newTestManager(t *testing.T, cfg Config, sim device.SimConfig) (*Manager, *testOpener) {
	t.Helper()
	opener := &testOpener{cfg: sim}
	m, err := NewManager(cfg, opener)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, opener
}

func newClient(t *testing.T, m *Manager, dir device.Direction) *Client {
	t.Helper()
	c, err := m.NewClient("card0", dir)
	require.NoError(t, err)
	return c
}

func simOf(c *Client) *gatedDevice {
	return c.dev.(*gatedDevice)
}

// writeFrames renders n frames of value through the buffer protocol
func writeFrames(t *testing.T, c *Client, n int, value byte) {
	t.Helper()
	v, err := c.GetRenderBuffer(n)
	require.NoError(t, err)
	b := v.Bytes()
	for i := range b {
		b[i] = value
	}
	require.NoError(t, c.ReleaseRenderBuffer(n, 0))
}
