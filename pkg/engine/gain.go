// ABOUTME: Software volume for interleaved PCM and float frames
// ABOUTME: Scales samples in place by a per-channel gain vector
package engine

import (
	"encoding/binary"
	"math"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
)

// Volume is the mix state a pump applies to outgoing frames
type Volume struct {
	Muted bool
	// Gains holds one factor per channel; nil means unity
	Gains []float32
}

// Unity reports whether the volume leaves samples untouched
func (v Volume) Unity() bool {
	if v.Muted {
		return false
	}
	for _, g := range v.Gains {
		if g != 1 {
			return false
		}
	}
	return true
}

func (v Volume) gain(ch int) float64 {
	if v.Muted {
		return 0
	}
	if ch < len(v.Gains) {
		return float64(v.Gains[ch])
	}
	return 1
}

// ApplyGain scales the interleaved frames in p by the per-channel gains.
// Formats other than U8, S16, S24, S32, F32 and F64 are left untouched.
func ApplyGain(p []byte, f audio.Format, v Volume) {
	if v.Unity() || f.FrameSize() == 0 {
		return
	}
	if v.Muted {
		silence := f.Silence()
		for i := range p {
			p[i] = silence
		}
		return
	}

	width := f.BitDepth / 8
	samples := len(p) / width
	for i := 0; i < samples; i++ {
		s := p[i*width : (i+1)*width]
		g := v.gain(i % f.Channels)

		switch {
		case f.Encoding == audio.EncodingFloat && width == 4:
			x := math.Float32frombits(binary.LittleEndian.Uint32(s))
			binary.LittleEndian.PutUint32(s, math.Float32bits(float32(float64(x)*g)))
		case f.Encoding == audio.EncodingFloat && width == 8:
			x := math.Float64frombits(binary.LittleEndian.Uint64(s))
			binary.LittleEndian.PutUint64(s, math.Float64bits(x*g))
		case width == 1:
			s[0] = byte(scale(float64(int(s[0])-0x80), g, -128, 127) + 0x80)
		case width == 2:
			x := int16(binary.LittleEndian.Uint16(s))
			binary.LittleEndian.PutUint16(s, uint16(int16(scale(float64(x), g, math.MinInt16, math.MaxInt16))))
		case width == 3:
			x := audio.SampleFrom24Bit([3]byte{s[0], s[1], s[2]})
			b := audio.SampleTo24Bit(int32(scale(float64(x), g, audio.Min24Bit, audio.Max24Bit)))
			copy(s, b[:])
		case width == 4:
			x := int32(binary.LittleEndian.Uint32(s))
			binary.LittleEndian.PutUint32(s, uint32(int32(scale(float64(x), g, math.MinInt32, math.MaxInt32))))
		}
	}
}

func scale(x, g, lo, hi float64) int64 {
	y := x * g
	if y < lo {
		y = lo
	}
	if y > hi {
		y = hi
	}
	return int64(y)
}
