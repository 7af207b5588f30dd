// ABOUTME: In-memory fragment device
// ABOUTME: Drains or fills its hardware fifo in real time or when advanced manually
package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

// SimConfig configures a simulated device
type SimConfig struct {
	Caps Caps

	// Rates lists discrete hardware rates; empty means any rate in range
	Rates []int

	FragmentFrames int // default 256
	Fragments      int // default 8

	// Manual disables real-time progression; the hardware only moves on Advance
	Manual bool

	// Generator fills capture data, silence when nil
	Generator func(p []byte)

	// Now is the time source for real-time progression
	Now func() time.Time
}

// SimStats counts device traffic
type SimStats struct {
	Writes       int
	BytesWritten int
	Reads        int
	BytesRead    int
	Played       int // bytes consumed by the simulated DAC
	Overruns     int // capture bytes dropped because the fifo was full
}

// Simulated is a Device whose hardware buffer is an in-memory fifo
type Simulated struct {
	mu sync.Mutex

	id     string
	dir    Direction
	cfg    SimConfig
	format audio.Format

	fifo    *ringbuffer.RingBuffer
	scratch []byte
	last    time.Time
	residue int64 // fractional frames carried between advances, in rate units

	extraDelay int
	delayErr   error
	stats      SimStats
	overruns   int // drop events not yet reported by ReadSpace
	closed     bool
}

// NewSimulated creates a simulated device handle
func NewSimulated(id string, dir Direction, cfg SimConfig) *Simulated {
	if cfg.FragmentFrames <= 0 {
		cfg.FragmentFrames = 256
	}
	if cfg.Fragments <= 0 {
		cfg.Fragments = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Caps.Encodings) == 0 {
		cfg.Caps = DefaultCaps()
	}

	return &Simulated{
		id:  id,
		dir: dir,
		cfg: cfg,
	}
}

func (s *Simulated) ID() string           { return s.id }
func (s *Simulated) Direction() Direction { return s.dir }
func (s *Simulated) Caps() Caps           { return s.cfg.Caps }

// Format returns the programmed format
func (s *Simulated) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Configure programs the simulated hardware, snapping to what it supports
func (s *Simulated) Configure(f audio.Format) (audio.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audio.Format{}, ErrClosed
	}
	if !s.cfg.Caps.SupportsEncoding(f.Encoding) {
		return audio.Format{}, fmt.Errorf("%w: %v", ErrUnsupported, f.Encoding)
	}

	accepted := f
	accepted.BitDepth = s.cfg.Caps.ClosestBitDepth(f.Encoding, f.BitDepth)
	accepted.SampleRate = s.snapRate(f.SampleRate)
	accepted.Channels = s.cfg.Caps.ClampChannels(f.Channels)

	if accepted.BitDepth == 0 || accepted.FrameSize() == 0 {
		return audio.Format{}, fmt.Errorf("%w: %v", ErrUnsupported, f)
	}

	if accepted != s.format || s.fifo == nil {
		size := s.cfg.Fragments * s.cfg.FragmentFrames * accepted.FrameSize()
		s.fifo = ringbuffer.New(size)
		s.scratch = make([]byte, size)
		s.residue = 0
		s.overruns = 0
	}
	s.format = accepted
	s.last = s.cfg.Now()

	return accepted, nil
}

func (s *Simulated) snapRate(rate int) int {
	if len(s.cfg.Rates) == 0 {
		return s.cfg.Caps.ClampRate(rate)
	}
	best := s.cfg.Rates[0]
	for _, r := range s.cfg.Rates[1:] {
		if abs(r-rate) < abs(best-rate) {
			best = r
		}
	}
	return best
}

// Advance moves the simulated hardware forward by frames
func (s *Simulated) Advance(frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.move(frames)
}

// progress applies real-time hardware movement since the last call (must hold s.mu)
func (s *Simulated) progress() {
	if s.cfg.Manual || s.fifo == nil {
		return
	}
	now := s.cfg.Now()
	elapsed := now.Sub(s.last)
	if elapsed <= 0 {
		return
	}
	s.last = now

	total := int64(elapsed)*int64(s.format.SampleRate) + s.residue
	frames := total / int64(time.Second)
	s.residue = total % int64(time.Second)
	s.move(int(frames))
}

// move drains (render) or fills (capture) the fifo by frames (must hold s.mu)
func (s *Simulated) move(frames int) {
	if s.fifo == nil || frames <= 0 {
		return
	}
	fs := s.format.FrameSize()
	size := frames * fs

	if s.dir == Render {
		for size > 0 && s.fifo.Length() > 0 {
			chunk := s.scratch
			if size < len(chunk) {
				chunk = chunk[:size]
			}
			n, err := s.fifo.Read(chunk)
			s.stats.Played += n
			size -= n
			if err != nil || n == 0 {
				break
			}
		}
		return
	}

	for size > 0 {
		chunk := s.scratch
		if size < len(chunk) {
			chunk = chunk[:size]
		}
		if s.cfg.Generator != nil {
			s.cfg.Generator(chunk)
		} else {
			for i := range chunk {
				chunk[i] = s.format.Silence()
			}
		}
		n, err := s.fifo.Write(chunk)
		size -= len(chunk)
		if dropped := len(chunk) - n; dropped > 0 {
			s.stats.Overruns += dropped
			s.overruns++
		}
		if err != nil && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) && !errors.Is(err, ringbuffer.ErrIsFull) {
			break
		}
	}
}

func (s *Simulated) ready() error {
	if s.closed {
		return ErrClosed
	}
	if s.fifo == nil {
		return ErrNotConfigured
	}
	return nil
}

// WriteSpace reports fragment size and free fifo bytes
func (s *Simulated) WriteSpace() (Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return Space{}, err
	}
	s.progress()
	return Space{
		FragmentSize: s.cfg.FragmentFrames * s.format.FrameSize(),
		Bytes:        s.fifo.Free(),
	}, nil
}

// ReadSpace reports fragment size, readable fifo bytes and the drops since
// the previous call
func (s *Simulated) ReadSpace() (Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return Space{}, err
	}
	s.progress()
	space := Space{
		FragmentSize: s.cfg.FragmentFrames * s.format.FrameSize(),
		Bytes:        s.fifo.Length(),
		Overruns:     s.overruns,
	}
	s.overruns = 0
	return space, nil
}

// Write queues whole frames into the fifo without blocking
func (s *Simulated) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return 0, err
	}
	s.progress()
	s.stats.Writes++

	fs := s.format.FrameSize()
	room := s.fifo.Free() / fs * fs
	if len(p) > room {
		p = p[:room]
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := s.fifo.Write(p)
	s.stats.BytesWritten += n
	if err != nil && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) && !errors.Is(err, ringbuffer.ErrIsFull) {
		return n, err
	}
	return n, nil
}

// Read takes whole frames from the fifo without blocking
func (s *Simulated) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return 0, err
	}
	s.progress()
	s.stats.Reads++

	fs := s.format.FrameSize()
	avail := s.fifo.Length() / fs * fs
	if len(p) > avail {
		p = p[:avail]
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := s.fifo.Read(p)
	s.stats.BytesRead += n
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return n, err
	}
	return n, nil
}

// OutputDelay returns queued fifo frames plus any injected extra delay
func (s *Simulated) OutputDelay() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return 0, err
	}
	if s.delayErr != nil {
		return 0, s.delayErr
	}
	s.progress()
	return s.fifo.Length()/s.format.FrameSize() + s.extraDelay, nil
}

// SetExtraDelay adds frames to the reported output delay
func (s *Simulated) SetExtraDelay(frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraDelay = frames
}

// SetDelayError makes OutputDelay fail with err until cleared with nil
func (s *Simulated) SetDelayError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayErr = err
}

// Stats returns a snapshot of the traffic counters
func (s *Simulated) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close releases the device
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	logrus.WithFields(logrus.Fields{
		"device":    s.id,
		"direction": s.dir,
		"stats":     fmt.Sprintf("%+v", s.stats),
	}).Debug("Simulated device closed")
	return nil
}

// SimOpener opens simulated devices sharing one configuration
type SimOpener struct {
	Config SimConfig

	mu     sync.Mutex
	opened []*Simulated
}

// Open creates a new simulated handle
func (o *SimOpener) Open(id string, dir Direction) (Device, error) {
	dev := NewSimulated(id, dir, o.Config)

	o.mu.Lock()
	o.opened = append(o.opened, dev)
	o.mu.Unlock()

	return dev, nil
}

// Opened returns every handle opened so far
func (o *SimOpener) Opened() []*Simulated {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Simulated(nil), o.opened...)
}

// Last returns the most recently opened handle
func (o *SimOpener) Last() *Simulated {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.opened) == 0 {
		return nil
	}
	return o.opened[len(o.opened)-1]
}

func init() {
	Register("sim", &SimOpener{})
}
