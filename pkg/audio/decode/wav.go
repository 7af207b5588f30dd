// ABOUTME: WAV file source and capture sink
// ABOUTME: Streams PCM frames out of and into RIFF/WAVE files via go-audio
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

const wavFormatPCM = 1

// WAVSource reads PCM frames from a WAV file
type WAVSource struct {
	file    *os.File
	decoder *wav.Decoder
	format  audio.Format
	buf     *goaudio.IntBuffer
}

// OpenWAV creates a source for an integer PCM WAV file
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	s, err := NewWAV(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.file = f

	logrus.WithFields(logrus.Fields{
		"file":   path,
		"format": s.format.String(),
	}).Debug("Loaded WAV")

	return s, nil
}

// NewWAV creates a source reading WAV data from r
func NewWAV(r io.ReadSeeker) (*WAVSource, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New("input is not a valid WAV audio file")
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: wav audio format %d", ErrUnsupportedFile, decoder.WavAudioFormat)
	}

	format := audio.Format{
		Encoding:   audio.EncodingPCM,
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("unsupported WAV layout: %w", err)
	}

	return &WAVSource{
		decoder: decoder,
		format:  format,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{SampleRate: format.SampleRate, NumChannels: format.Channels},
		},
	}, nil
}

// Format returns the file format
func (s *WAVSource) Format() audio.Format { return s.format }

// Read fills p with whole frames from the data chunk
func (s *WAVSource) Read(p []byte) (int, error) {
	width := s.format.BitDepth / 8
	p = p[:wholeFrames(len(p), s.format.FrameSize())]
	samples := len(p) / width
	if samples == 0 {
		return 0, nil
	}

	if cap(s.buf.Data) < samples {
		s.buf.Data = make([]int, samples)
	}
	s.buf.Data = s.buf.Data[:samples]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil {
		return 0, fmt.Errorf("wav decode error: %w", err)
	}
	n -= n % s.format.Channels
	if n == 0 {
		return 0, io.EOF
	}

	putInts(p, s.buf.Data[:n], width)
	return n * width, nil
}

// Close releases the file when the source owns one
func (s *WAVSource) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// putInts writes native-depth WAV samples as little-endian bytes.
// 8-bit WAV data is unsigned and passes through unchanged.
func putInts(dst []byte, data []int, width int) {
	for i, v := range data {
		for b := 0; b < width; b++ {
			dst[i*width+b] = byte(v >> (8 * b))
		}
	}
}

// getInts is the inverse of putInts
func getInts(dst []int, p []byte, width int) {
	for i := range dst {
		s := p[i*width : (i+1)*width]
		var v int32
		for b := 0; b < width; b++ {
			v |= int32(s[b]) << (8 * b)
		}
		if width > 1 {
			// sign extend from the top byte
			shift := 32 - 8*width
			v = v << shift >> shift
		}
		dst[i] = int(v)
	}
}

// WAVSink writes integer PCM frames to a WAV file
type WAVSink struct {
	file    *os.File
	encoder *wav.Encoder
	format  audio.Format
	buf     *goaudio.IntBuffer
	frames  int
}

// CreateWAV creates or truncates path and prepares it for frames in format
func CreateWAV(path string, format audio.Format) (*WAVSink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.Encoding != audio.EncodingPCM {
		return nil, fmt.Errorf("%w: wav sink writes integer pcm only, got %s", ErrUnsupportedFile, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	return &WAVSink{
		file:    f,
		encoder: wav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, wavFormatPCM),
		format:  format,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{SampleRate: format.SampleRate, NumChannels: format.Channels},
			SourceBitDepth: format.BitDepth,
		},
	}, nil
}

// Write appends the whole frames in p
func (s *WAVSink) Write(p []byte) (int, error) {
	width := s.format.BitDepth / 8
	p = p[:wholeFrames(len(p), s.format.FrameSize())]
	samples := len(p) / width
	if samples == 0 {
		return 0, nil
	}

	if cap(s.buf.Data) < samples {
		s.buf.Data = make([]int, samples)
	}
	s.buf.Data = s.buf.Data[:samples]
	getInts(s.buf.Data, p, width)

	if err := s.encoder.Write(s.buf); err != nil {
		return 0, fmt.Errorf("failed to write WAV samples: %w", err)
	}
	s.frames += samples / s.format.Channels
	return len(p), nil
}

// Frames returns the frames written so far
func (s *WAVSink) Frames() int { return s.frames }

// Close finalizes the headers and closes the file
func (s *WAVSink) Close() error {
	encErr := s.encoder.Close()
	fileErr := s.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", encErr)
	}
	return fileErr
}
