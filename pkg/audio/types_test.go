// ABOUTME: Tests for audio types
// ABOUTME: Tests format math, validation and sample conversion functions
package audio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDerivedSizes(t *testing.T) {
	f := Format{Encoding: EncodingPCM, SampleRate: 44100, Channels: 2, BitDepth: 16}

	assert.Equal(t, 4, f.FrameSize())
	assert.Equal(t, 176400, f.BytesPerSecond())
	assert.Equal(t, 441, f.FramesFor(10*time.Millisecond))
	assert.Equal(t, 1323, f.FramesFor(30*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, f.DurationOf(441))
}

func TestFormatFramesForRoundsUp(t *testing.T) {
	f := Format{Encoding: EncodingPCM, SampleRate: 48000, Channels: 1, BitDepth: 16}

	// 1ms + 1ns is 48.000048 frames
	assert.Equal(t, 49, f.FramesFor(time.Millisecond+time.Nanosecond))
	assert.Equal(t, 0, f.FramesFor(0))
}

func TestFormatFramesForLongDurations(t *testing.T) {
	f := Format{Encoding: EncodingPCM, SampleRate: 44100, Channels: 2, BitDepth: 16}

	assert.Equal(t, 44100*3600, f.FramesFor(time.Hour))
	assert.Equal(t, 441001, f.FramesFor(10*time.Second+time.Nanosecond))
	assert.Equal(t, math.MaxInt32, f.FramesFor(300000*time.Hour))
	assert.Equal(t, math.MaxInt32, f.FramesFor(time.Duration(math.MaxInt64)))
}

func TestFormatSilence(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   byte
	}{
		{"unsigned 8-bit", Format{Encoding: EncodingPCM, BitDepth: 8}, 0x80},
		{"16-bit", Format{Encoding: EncodingPCM, BitDepth: 16}, 0},
		{"float", Format{Encoding: EncodingFloat, BitDepth: 32}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.format.Silence())
		})
	}
}

func TestFormatValidate(t *testing.T) {
	valid := Format{Encoding: EncodingFloat, SampleRate: 48000, Channels: 2, BitDepth: 32}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		format Format
	}{
		{"no channels", Format{Encoding: EncodingPCM, SampleRate: 48000, BitDepth: 16}},
		{"no rate", Format{Encoding: EncodingPCM, Channels: 2, BitDepth: 16}},
		{"odd pcm depth", Format{Encoding: EncodingPCM, SampleRate: 48000, Channels: 2, BitDepth: 12}},
		{"16-bit float", Format{Encoding: EncodingFloat, SampleRate: 48000, Channels: 2, BitDepth: 16}},
		{"unknown encoding", Format{Encoding: Encoding(7), SampleRate: 48000, Channels: 2, BitDepth: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.format.Validate(), ErrInvalidFormat)
		})
	}
}

func TestSampleFromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected int32
	}{
		{"zero", 0, 0},
		{"positive", 100, 100 << 8},
		{"negative", -100, -100 << 8},
		{"max", 32767, 32767 << 8},
		{"min", -32768, -32768 << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFromInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSampleToInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected int16
	}{
		{"zero", 0, 0},
		{"positive", 100 << 8, 100},
		{"negative", -100 << 8, -100},
		{"24bit positive", 1000000, 3906}, // 1000000 >> 8 = 3906
		{"24bit negative", -1000000, -3907},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleToInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSampleTo24Bit(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected [3]byte
	}{
		{"zero", 0, [3]byte{0, 0, 0}},
		{"positive", 0x123456, [3]byte{0x56, 0x34, 0x12}},
		{"negative", -256, [3]byte{0x00, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleTo24Bit(tt.input)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestSampleFrom24Bit(t *testing.T) {
	tests := []struct {
		name     string
		input    [3]byte
		expected int32
	}{
		{"zero", [3]byte{0, 0, 0}, 0},
		{"positive", [3]byte{0x56, 0x34, 0x12}, 0x123456},
		{"negative", [3]byte{0x00, 0xFF, 0xFF}, -256},
		{"max positive", [3]byte{0xFF, 0xFF, 0x7F}, Max24Bit},
		{"max negative", [3]byte{0x00, 0x00, 0x80}, Min24Bit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFrom24Bit(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestRoundTrip16Bit(t *testing.T) {
	// Test that 16-bit samples survive round-trip conversion
	samples := []int16{0, 100, -100, 1000, -1000, 32767, -32768}

	for _, original := range samples {
		sample32 := SampleFromInt16(original)
		result := SampleToInt16(sample32)
		if result != original {
			t.Errorf("round-trip failed: %d -> %d -> %d", original, sample32, result)
		}
	}
}

func TestRoundTrip24Bit(t *testing.T) {
	// Test that 24-bit samples survive round-trip conversion
	samples := []int32{0, 100000, -100000, Max24Bit, Min24Bit}

	for _, original := range samples {
		bytes := SampleTo24Bit(original)
		result := SampleFrom24Bit(bytes)
		// Mask to 24-bit for comparison
		expected := original & 0xFFFFFF
		if expected&0x800000 != 0 {
			expected |= ^0xFFFFFF
		}
		if result != expected {
			t.Errorf("round-trip failed: %d -> %v -> %d (expected %d)", original, bytes, result, expected)
		}
	}
}
