// ABOUTME: Test tone generator source
// ABOUTME: Generates a sine wave in any stream format
package decode

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
)

// DefaultToneFrequency is A4
const DefaultToneFrequency = 440.0

// ToneSource generates a sine tone on every channel
type ToneSource struct {
	mu          sync.Mutex
	format      audio.Format
	frequency   float64
	amplitude   float64
	sampleIndex uint64
	// remaining frames before EOF, negative for an endless tone
	remaining int64
	samples   []int32
}

// NewTone creates a tone at frequency Hz, 50% amplitude. A zero duration
// produces an endless tone.
func NewTone(format audio.Format, frequency float64, duration time.Duration) (*ToneSource, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if frequency <= 0 || frequency >= float64(format.SampleRate)/2 {
		return nil, fmt.Errorf("tone frequency %v Hz outside (0, %d)", frequency, format.SampleRate/2)
	}

	remaining := int64(-1)
	if duration > 0 {
		remaining = int64(format.FramesFor(duration))
	}

	return &ToneSource{
		format:    format,
		frequency: frequency,
		amplitude: 0.5,
		remaining: remaining,
	}, nil
}

// Format returns the tone format
func (s *ToneSource) Format() audio.Format { return s.format }

// Read fills p with whole frames of the tone
func (s *ToneSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(p) / s.format.FrameSize()
	if s.remaining >= 0 && int64(frames) > s.remaining {
		frames = int(s.remaining)
	}
	if frames == 0 {
		if s.remaining == 0 {
			return 0, io.EOF
		}
		return 0, nil
	}

	count := frames * s.format.Channels
	if cap(s.samples) < count {
		s.samples = make([]int32, count)
	}
	samples := s.samples[:count]

	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.format.SampleRate)
		v := int32(math.Sin(2*math.Pi*s.frequency*t) * audio.Max24Bit * s.amplitude)
		for ch := 0; ch < s.format.Channels; ch++ {
			samples[i*s.format.Channels+ch] = v
		}
	}

	s.sampleIndex += uint64(frames)
	if s.remaining > 0 {
		s.remaining -= int64(frames)
	}
	return EncodeSamples(p, samples, s.format), nil
}

// Close is a no-op
func (s *ToneSource) Close() error { return nil }
