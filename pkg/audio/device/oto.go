// ABOUTME: Oto-based device backend
// ABOUTME: Render-only device whose oto player pulls from a non-blocking fifo
package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

const otoFragmentFrames = 512

// oto allows one context per process; every handle shares it
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

// Oto is a render Device on top of ebitengine/oto
type Oto struct {
	mu     sync.Mutex
	id     string
	player *oto.Player
	fifo   *ringbuffer.RingBuffer
	format audio.Format
	closed bool
}

// OpenOto opens a render handle; capture is not available through oto
func OpenOto(id string, dir Direction) (Device, error) {
	if dir != Render {
		return nil, fmt.Errorf("oto backend supports render only")
	}
	return &Oto{id: id}, nil
}

func (o *Oto) ID() string           { return o.id }
func (o *Oto) Direction() Direction { return Render }

// Caps lists the three sample formats oto can open
func (o *Oto) Caps() Caps {
	caps := DefaultCaps()
	caps.BitDepths = []int{8, 16}
	caps.MaxChannels = 2
	return caps
}

// Format returns the programmed format
func (o *Oto) Format() audio.Format {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.format
}

func otoSampleFormat(f audio.Format) oto.Format {
	switch {
	case f.Encoding == audio.EncodingFloat:
		return oto.FormatFloat32LE
	case f.BitDepth == 8:
		return oto.FormatUnsignedInt8
	default:
		return oto.FormatSignedInt16LE
	}
}

// Configure creates the process oto context on first use. Later handles
// cannot change it, so they are told the context format instead.
func (o *Oto) Configure(f audio.Format) (audio.Format, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return audio.Format{}, ErrClosed
	}

	accepted := f
	accepted.BitDepth = o.Caps().ClosestBitDepth(f.Encoding, f.BitDepth)
	accepted.Channels = o.Caps().ClampChannels(f.Channels)
	accepted.SampleRate = o.Caps().ClampRate(f.SampleRate)

	otoMu.Lock()
	if otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   accepted.SampleRate,
			ChannelCount: accepted.Channels,
			Format:       otoSampleFormat(accepted),
			BufferSize:   accepted.DurationOf(otoFragmentFrames),
		}
		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			otoMu.Unlock()
			return audio.Format{}, fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan
		otoCtx = ctx
		otoFormat = accepted
	} else if otoFormat != accepted {
		logrus.WithFields(logrus.Fields{
			"requested": accepted.String(),
			"context":   otoFormat.String(),
		}).Warn("oto doesn't support reinitialization, using existing context format")
		accepted = otoFormat
	}
	ctx := otoCtx
	otoMu.Unlock()

	if o.player != nil && o.format == accepted {
		return accepted, nil
	}
	if o.player != nil {
		_ = o.player.Close()
	}

	fs := accepted.FrameSize()
	o.fifo = ringbuffer.New(otoFragmentFrames * 8 * fs)
	o.format = accepted
	o.player = ctx.NewPlayer(&fifoReader{fifo: o.fifo, silence: accepted.Silence(), frameSize: fs})
	o.player.Play()

	logrus.WithFields(logrus.Fields{
		"format":  accepted.String(),
		"backend": "oto",
	}).Info("Audio device initialized")

	return accepted, nil
}

func (o *Oto) configured() (*ringbuffer.RingBuffer, int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, 0, ErrClosed
	}
	if o.fifo == nil {
		return nil, 0, ErrNotConfigured
	}
	return o.fifo, o.format.FrameSize(), nil
}

// WriteSpace reports the fifo room
func (o *Oto) WriteSpace() (Space, error) {
	fifo, fs, err := o.configured()
	if err != nil {
		return Space{}, err
	}
	return Space{FragmentSize: otoFragmentFrames * fs, Bytes: fifo.Free()}, nil
}

// ReadSpace is not available on a render-only device
func (o *Oto) ReadSpace() (Space, error) {
	return Space{}, fmt.Errorf("oto backend supports render only")
}

// Write queues whole frames for the player
func (o *Oto) Write(p []byte) (int, error) {
	fifo, fs, err := o.configured()
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

// Read is not available on a render-only device
func (o *Oto) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("oto backend supports render only")
}

// OutputDelay is the fifo depth plus what the player has buffered
func (o *Oto) OutputDelay() (int, error) {
	fifo, fs, err := o.configured()
	if err != nil {
		return 0, err
	}
	o.mu.Lock()
	buffered := o.player.BufferedSize()
	o.mu.Unlock()
	return (fifo.Length() + buffered) / fs, nil
}

// Close stops the player; the shared context stays for later handles
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			return err
		}
		o.player = nil
	}
	return nil
}

// fifoReader feeds the oto player, padding with silence when the fifo runs dry
type fifoReader struct {
	fifo      *ringbuffer.RingBuffer
	silence   byte
	frameSize int
}

func (r *fifoReader) Read(p []byte) (int, error) {
	p = p[:len(p)/r.frameSize*r.frameSize]
	n, _ := r.fifo.Read(p)
	if n == 0 {
		// keep the player fed without spinning
		time.Sleep(time.Millisecond)
	}
	for i := n; i < len(p); i++ {
		p[i] = r.silence
	}
	return len(p), nil
}

func init() {
	Register("oto", OpenerFunc(OpenOto))
}
