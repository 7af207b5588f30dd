// ABOUTME: Audio device interface definition
// ABOUTME: Common boundary for file-descriptor style playback and capture backends
package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
)

var (
	// ErrUnsupported is returned when the device cannot take a format at all
	ErrUnsupported = errors.New("format not supported by device")
	// ErrNotConfigured is returned by I/O calls before Configure succeeded
	ErrNotConfigured = errors.New("device not configured")
	// ErrClosed is returned by calls on a closed device
	ErrClosed = errors.New("device closed")
	// ErrUnknownBackend is returned by Backend for unregistered names
	ErrUnknownBackend = errors.New("unknown device backend")
)

// Direction is the data flow of a stream
type Direction int

const (
	// Render streams move data from the application to the device
	Render Direction = iota
	// Capture streams move data from the device to the application
	Capture
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "render"
}

// Caps describes what a device handle can be programmed with
type Caps struct {
	Encodings     []audio.Encoding
	BitDepths     []int // integer PCM depths
	MinRate       int
	MaxRate       int
	PreferredRate int
	MinChannels   int
	MaxChannels   int

	DefaultPeriod     time.Duration
	MinimumPeriod     time.Duration
	MaximumPeriod     time.Duration
	MaxBufferDuration time.Duration
}

// SupportsEncoding reports whether the encoding is advertised
func (c Caps) SupportsEncoding(e audio.Encoding) bool {
	for _, have := range c.Encodings {
		if have == e {
			return true
		}
	}
	return false
}

// ClosestBitDepth returns the advertised depth nearest to bits, preferring the wider one on ties
func (c Caps) ClosestBitDepth(e audio.Encoding, bits int) int {
	if e == audio.EncodingFloat {
		return 32
	}
	depths := append([]int(nil), c.BitDepths...)
	sort.Ints(depths)
	best := 0
	for _, d := range depths {
		if best == 0 || abs(d-bits) <= abs(best-bits) {
			best = d
		}
	}
	return best
}

// ClampRate limits rate to the advertised range
func (c Caps) ClampRate(rate int) int {
	return clamp(rate, c.MinRate, c.MaxRate)
}

// ClampChannels limits channels to the advertised range
func (c Caps) ClampChannels(channels int) int {
	return clamp(channels, c.MinChannels, c.MaxChannels)
}

// DefaultCaps is the capability set shared by the software backends
func DefaultCaps() Caps {
	return Caps{
		Encodings:         []audio.Encoding{audio.EncodingPCM, audio.EncodingFloat},
		BitDepths:         []int{8, 16, 24, 32},
		MinRate:           8000,
		MaxRate:           192000,
		PreferredRate:     44100,
		MinChannels:       1,
		MaxChannels:       8,
		DefaultPeriod:     10 * time.Millisecond,
		MinimumPeriod:     5 * time.Millisecond,
		MaximumPeriod:     500 * time.Millisecond,
		MaxBufferDuration: 2 * time.Second,
	}
}

// Space reports device buffer room.
// For render Bytes is the free space, for capture the readable bytes.
type Space struct {
	FragmentSize int
	Bytes        int

	// Overruns counts capture overruns the hardware reported since the
	// previous ReadSpace. Each one lost recorded data.
	Overruns int
}

// Device is an opened audio device handle for one direction.
// Write and Read never block; they may transfer fewer bytes than asked.
type Device interface {
	ID() string
	Direction() Direction
	Caps() Caps

	// Format returns the currently programmed format, zero before Configure
	Format() audio.Format

	// Configure programs bit depth, sample rate and channel count in that
	// order and returns what the hardware accepted
	Configure(f audio.Format) (audio.Format, error)

	WriteSpace() (Space, error)
	ReadSpace() (Space, error)
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)

	// OutputDelay returns the frames queued ahead of the DAC
	OutputDelay() (int, error)

	Close() error
}

// Opener opens device handles
type Opener interface {
	Open(id string, dir Direction) (Device, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(id string, dir Direction) (Device, error)

// Open calls f
func (f OpenerFunc) Open(id string, dir Direction) (Device, error) {
	return f(id, dir)
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]Opener{}
)

// Register makes a backend available by name
func Register(name string, opener Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = opener
}

// Backend returns the opener registered under name
func Backend(name string) (Opener, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	opener, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return opener, nil
}

// Backends lists registered backend names
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
