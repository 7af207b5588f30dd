// ABOUTME: Audio source package for feeding render streams
// ABOUTME: Provides Source interface and implementations for WAV, MP3, Opus, raw PCM and test tones
// Package decode provides audio sources that produce interleaved frames in
// a stream format, ready to be copied into a render buffer.
//
// Supports: WAV (PCM), MP3, Ogg Opus, raw PCM readers and a sine test tone.
// Converter adapts a source to another encoding or bit depth at the same
// rate and channel count. WAVSink writes captured frames back to disk.
//
// Example:
//
//	src, err := decode.Open("track.wav")
//	n, err := src.Read(view.Bytes())
package decode
