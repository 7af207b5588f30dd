// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, encodings and sample conversion functions
// Package audio provides the stream format type shared by every layer of the
// engine.
//
// A Format carries the encoding tag, sample rate, channel count, bit depth
// and optional speaker mask of a stream. Frame size, byte rate, the silence
// byte and frame/duration conversions are derived from it.
//
// Example:
//
//	format := audio.Format{
//	    Encoding:   audio.EncodingPCM,
//	    SampleRate: 44100,
//	    Channels:   2,
//	    BitDepth:   16,
//	}
//
//	frames := format.FramesFor(10 * time.Millisecond) // 441
package audio
