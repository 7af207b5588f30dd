// ABOUTME: Audio stream format definitions
// ABOUTME: Defines sample encodings, frame math and sample conversions
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// ErrInvalidFormat is returned by Validate for malformed formats
var ErrInvalidFormat = errors.New("invalid stream format")

// Encoding is the sample encoding tag of a stream
type Encoding int

const (
	// EncodingPCM is integer PCM (unsigned for 8-bit, signed little-endian otherwise)
	EncodingPCM Encoding = iota
	// EncodingFloat is IEEE float little-endian
	EncodingFloat
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCM:
		return "pcm"
	case EncodingFloat:
		return "float"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Format describes an audio stream format
type Format struct {
	Encoding    Encoding
	SampleRate  int
	Channels    int
	BitDepth    int
	ChannelMask uint32 // speaker positions, zero when unspecified
}

// FrameSize returns bytes per sample-frame (block align)
func (f Format) FrameSize() int {
	return f.Channels * (f.BitDepth / 8)
}

// BytesPerSecond returns the byte rate of the stream
func (f Format) BytesPerSecond() int {
	return f.FrameSize() * f.SampleRate
}

// Silence returns the byte value that encodes silence.
// Unsigned 8-bit PCM is centred on 0x80, everything else on zero.
func (f Format) Silence() byte {
	if f.Encoding == EncodingPCM && f.BitDepth == 8 {
		return 0x80
	}
	return 0
}

// Validate checks that the format describes a usable stream
func (f Format) Validate() error {
	if f.Channels <= 0 {
		return fmt.Errorf("%w: %d channels", ErrInvalidFormat, f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.SampleRate)
	}

	switch f.Encoding {
	case EncodingPCM:
		switch f.BitDepth {
		case 8, 16, 24, 32:
		default:
			return fmt.Errorf("%w: %d-bit pcm", ErrInvalidFormat, f.BitDepth)
		}
	case EncodingFloat:
		if f.BitDepth != 32 && f.BitDepth != 64 {
			return fmt.Errorf("%w: %d-bit float", ErrInvalidFormat, f.BitDepth)
		}
	default:
		return fmt.Errorf("%w: unknown encoding %v", ErrInvalidFormat, f.Encoding)
	}

	return nil
}

// FramesFor converts a duration to a frame count, rounding up
func (f Format) FramesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	// whole seconds and the remainder are scaled separately so long
	// durations cannot overflow
	rate := int64(f.SampleRate)
	secs, rem := int64(d/time.Second), int64(d%time.Second)
	frames := secs*rate + rem*rate/int64(time.Second)
	if rem*rate%int64(time.Second) != 0 {
		frames++
	}
	if frames > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(frames)
}

// DurationOf converts a frame count to a duration
func (f Format) DurationOf(frames int) time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(f.SampleRate))
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch %d-bit", f.Encoding, f.SampleRate, f.Channels, f.BitDepth)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
