// ABOUTME: Sample format converter
// ABOUTME: Adapts a source to another encoding or bit depth at the same rate and layout
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
)

// Converter re-encodes frames of a source into a target format
type Converter struct {
	src     Source
	target  audio.Format
	raw     []byte
	samples []int32
}

// NewConverter wraps src so that Read produces target frames.
// Sample rate and channel count must match; no resampling is done.
func NewConverter(src Source, target audio.Format) (Source, error) {
	in := src.Format()
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if in.SampleRate != target.SampleRate || in.Channels != target.Channels {
		return nil, fmt.Errorf("cannot convert %s to %s: rate and channels must match", in, target)
	}
	if in.Encoding == target.Encoding && in.BitDepth == target.BitDepth {
		return src, nil
	}
	return &Converter{src: src, target: target}, nil
}

// Format returns the target format
func (c *Converter) Format() audio.Format { return c.target }

// Read fills p with converted frames
func (c *Converter) Read(p []byte) (int, error) {
	frames := len(p) / c.target.FrameSize()
	if frames == 0 {
		return 0, nil
	}

	in := c.src.Format()
	need := frames * in.FrameSize()
	if cap(c.raw) < need {
		c.raw = make([]byte, need)
	}
	n, err := c.src.Read(c.raw[:need])
	if n == 0 {
		return 0, err
	}

	count := n / (in.BitDepth / 8)
	if cap(c.samples) < count {
		c.samples = make([]int32, count)
	}
	DecodeSamples(c.samples[:count], c.raw[:n], in)
	return EncodeSamples(p, c.samples[:count], c.target), err
}

// Close closes the wrapped source
func (c *Converter) Close() error {
	return c.src.Close()
}
