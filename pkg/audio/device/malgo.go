// ABOUTME: Malgo-based device backend
// ABOUTME: Bridges miniaudio's callback model to the non-blocking fd-style Device boundary
package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

const (
	malgoPeriodFrames = 480
	malgoPeriods      = 4
)

// Malgo is a Device backed by a miniaudio playback or capture device.
// The miniaudio callback moves bytes between the hardware and fifo; the
// engine side only ever touches fifo, so Write and Read never block.
type Malgo struct {
	mu sync.Mutex

	id       string
	dir      Direction
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format

	fifo     *ringbuffer.RingBuffer
	overruns atomic.Int64 // capture callbacks that found fifo full
	closed   bool
}

// OpenMalgo initializes a miniaudio context for one stream
func OpenMalgo(id string, dir Direction) (Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logrus.WithField("backend", "malgo").Debug(message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	if id != "" && id != "default" {
		logrus.WithField("device", id).Warn("malgo backend always uses the default device")
	}

	return &Malgo{id: id, dir: dir, malgoCtx: ctx}, nil
}

func (m *Malgo) ID() string           { return m.id }
func (m *Malgo) Direction() Direction { return m.dir }
func (m *Malgo) Caps() Caps           { return DefaultCaps() }

// Format returns the programmed format
func (m *Malgo) Format() audio.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.format
}

func malgoFormat(f audio.Format) (malgo.FormatType, error) {
	if f.Encoding == audio.EncodingFloat {
		if f.BitDepth == 32 {
			return malgo.FormatF32, nil
		}
		return malgo.FormatUnknown, fmt.Errorf("%w: %d-bit float", ErrUnsupported, f.BitDepth)
	}
	switch f.BitDepth {
	case 8:
		return malgo.FormatU8, nil
	case 16:
		return malgo.FormatS16, nil
	case 24:
		return malgo.FormatS24, nil
	case 32:
		return malgo.FormatS32, nil
	}
	return malgo.FormatUnknown, fmt.Errorf("%w: %d-bit pcm", ErrUnsupported, f.BitDepth)
}

// Configure (re)initializes the miniaudio device for the format.
// miniaudio converts internally, so any format it can name is accepted as is.
func (m *Malgo) Configure(f audio.Format) (audio.Format, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return audio.Format{}, ErrClosed
	}

	accepted := f
	accepted.Channels = DefaultCaps().ClampChannels(f.Channels)
	accepted.SampleRate = DefaultCaps().ClampRate(f.SampleRate)

	mf, err := malgoFormat(accepted)
	if err != nil {
		return audio.Format{}, err
	}

	if m.device != nil && m.format == accepted {
		return accepted, nil
	}
	if m.device != nil {
		logrus.WithFields(logrus.Fields{
			"from": m.format.String(),
			"to":   accepted.String(),
		}).Info("Format change detected, reinitializing device")
		m.closeDevice()
	}

	kind := malgo.Playback
	if m.dir == Capture {
		kind = malgo.Capture
	}
	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.SampleRate = uint32(accepted.SampleRate)
	deviceConfig.PeriodSizeInFrames = malgoPeriodFrames
	deviceConfig.Periods = malgoPeriods
	deviceConfig.Alsa.NoMMap = 1
	if m.dir == Capture {
		deviceConfig.Capture.Format = mf
		deviceConfig.Capture.Channels = uint32(accepted.Channels)
	} else {
		deviceConfig.Playback.Format = mf
		deviceConfig.Playback.Channels = uint32(accepted.Channels)
	}

	fs := accepted.FrameSize()
	fifo := ringbuffer.New(malgoPeriodFrames * malgoPeriods * fs)
	silence := accepted.Silence()

	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		if m.dir == Capture {
			if n, _ := fifo.Write(pInputSamples); n < len(pInputSamples) {
				m.overruns.Add(1)
			}
			return
		}
		n, _ := fifo.Read(pOutputSample)
		for i := n; i < len(pOutputSample); i++ {
			pOutputSample[i] = silence
		}
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return audio.Format{}, fmt.Errorf("failed to initialize %s device: %w", m.dir, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return audio.Format{}, fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.fifo = fifo
	m.overruns.Store(0)
	m.format = accepted

	logrus.WithFields(logrus.Fields{
		"direction": m.dir,
		"format":    accepted.String(),
		"backend":   "malgo",
	}).Info("Audio device initialized")

	return accepted, nil
}

func (m *Malgo) configured() (*ringbuffer.RingBuffer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, 0, ErrClosed
	}
	if m.fifo == nil {
		return nil, 0, ErrNotConfigured
	}
	return m.fifo, m.format.FrameSize(), nil
}

// WriteSpace reports one miniaudio period as the fragment and the fifo room
func (m *Malgo) WriteSpace() (Space, error) {
	fifo, fs, err := m.configured()
	if err != nil {
		return Space{}, err
	}
	return Space{FragmentSize: malgoPeriodFrames * fs, Bytes: fifo.Free()}, nil
}

// ReadSpace reports one miniaudio period as the fragment, the captured bytes
// and the callbacks that found the fifo full
func (m *Malgo) ReadSpace() (Space, error) {
	fifo, fs, err := m.configured()
	if err != nil {
		return Space{}, err
	}
	return Space{
		FragmentSize: malgoPeriodFrames * fs,
		Bytes:        fifo.Length(),
		Overruns:     int(m.overruns.Swap(0)),
	}, nil
}

// Write queues whole frames for the playback callback
func (m *Malgo) Write(p []byte) (int, error) {
	fifo, fs, err := m.configured()
	if err != nil {
		return 0, err
	}
	room := fifo.Free() / fs * fs
	if len(p) > room {
		p = p[:room]
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := fifo.Write(p)
	if errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) || errors.Is(err, ringbuffer.ErrIsFull) {
		err = nil
	}
	return n, err
}

// Read takes whole captured frames
func (m *Malgo) Read(p []byte) (int, error) {
	fifo, fs, err := m.configured()
	if err != nil {
		return 0, err
	}
	avail := fifo.Length() / fs * fs
	if len(p) > avail {
		p = p[:avail]
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := fifo.Read(p)
	if errors.Is(err, ringbuffer.ErrIsEmpty) {
		err = nil
	}
	return n, err
}

// OutputDelay is the fifo depth plus one device period
func (m *Malgo) OutputDelay() (int, error) {
	fifo, fs, err := m.configured()
	if err != nil {
		return 0, err
	}
	return fifo.Length()/fs + malgoPeriodFrames, nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			logrus.WithError(err).Warn("Device stop error")
		}
		m.device.Uninit()
		m.device = nil
		m.fifo = nil
	}
}

// Close releases the device and the miniaudio context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			logrus.WithError(err).Warn("Malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

func init() {
	Register("malgo", OpenerFunc(OpenMalgo))
}
