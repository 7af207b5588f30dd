// ABOUTME: Raw PCM source and sample codec
// ABOUTME: Converts between stream bytes and int32 samples in 24-bit range
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
)

// DecodeSamples converts the bytes in p into int32 samples in 24-bit range.
// It returns the number of samples written to dst.
func DecodeSamples(dst []int32, p []byte, f audio.Format) int {
	width := f.BitDepth / 8
	if width == 0 {
		return 0
	}
	n := len(p) / width
	if n > len(dst) {
		n = len(dst)
	}

	for i := 0; i < n; i++ {
		s := p[i*width : (i+1)*width]
		switch {
		case f.Encoding == audio.EncodingFloat && width == 4:
			dst[i] = fromFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(s))))
		case f.Encoding == audio.EncodingFloat && width == 8:
			dst[i] = fromFloat(math.Float64frombits(binary.LittleEndian.Uint64(s)))
		case width == 1:
			dst[i] = (int32(s[0]) - 128) << 16
		case width == 2:
			dst[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(s)))
		case width == 3:
			dst[i] = audio.SampleFrom24Bit([3]byte{s[0], s[1], s[2]})
		case width == 4:
			dst[i] = int32(binary.LittleEndian.Uint32(s)) >> 8
		}
	}
	return n
}

// EncodeSamples converts 24-bit range samples into stream bytes in dst.
// It returns the number of bytes written.
func EncodeSamples(dst []byte, samples []int32, f audio.Format) int {
	width := f.BitDepth / 8
	if width == 0 {
		return 0
	}
	n := len(dst) / width
	if n > len(samples) {
		n = len(samples)
	}

	for i := 0; i < n; i++ {
		v := clamp24(samples[i])
		d := dst[i*width : (i+1)*width]
		switch {
		case f.Encoding == audio.EncodingFloat && width == 4:
			binary.LittleEndian.PutUint32(d, math.Float32bits(float32(toFloat(v))))
		case f.Encoding == audio.EncodingFloat && width == 8:
			binary.LittleEndian.PutUint64(d, math.Float64bits(toFloat(v)))
		case width == 1:
			d[0] = byte((v >> 16) + 128)
		case width == 2:
			binary.LittleEndian.PutUint16(d, uint16(audio.SampleToInt16(v)))
		case width == 3:
			b := audio.SampleTo24Bit(v)
			copy(d, b[:])
		case width == 4:
			binary.LittleEndian.PutUint32(d, uint32(v<<8))
		}
	}
	return n * width
}

func clamp24(v int32) int32 {
	if v > audio.Max24Bit {
		return audio.Max24Bit
	}
	if v < audio.Min24Bit {
		return audio.Min24Bit
	}
	return v
}

func fromFloat(x float64) int32 {
	if math.IsNaN(x) {
		return 0
	}
	x = math.Max(-1, math.Min(1, x))
	return int32(math.Round(x * audio.Max24Bit))
}

func toFloat(v int32) float64 {
	return float64(v) / audio.Max24Bit
}

// PCMSource reads raw interleaved frames from a reader
type PCMSource struct {
	r      io.Reader
	format audio.Format
	// carry holds a partial frame from the previous read
	carry []byte
}

// NewPCM creates a source for headerless frames in format
func NewPCM(r io.Reader, format audio.Format) (*PCMSource, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid raw pcm format: %w", err)
	}
	return &PCMSource{r: r, format: format}, nil
}

// Format returns the raw stream format
func (s *PCMSource) Format() audio.Format { return s.format }

// Read fills p with whole frames
func (s *PCMSource) Read(p []byte) (int, error) {
	fs := s.format.FrameSize()
	p = p[:wholeFrames(len(p), fs)]
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.carry)
	s.carry = s.carry[:0]

	var err error
	for n < len(p) && err == nil {
		var m int
		m, err = s.r.Read(p[n:])
		n += m
	}

	whole := wholeFrames(n, fs)
	if whole < n {
		s.carry = append(s.carry, p[whole:n]...)
	}
	if whole > 0 && err == io.EOF {
		err = nil
	}
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return whole, err
}

// Close closes the reader when it is a Closer
func (s *PCMSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
