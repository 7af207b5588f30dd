// ABOUTME: MP3 file source
// ABOUTME: Decodes MP3 audio to 16-bit stereo frames
package decode

import (
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"
)

// MP3Source reads from an MP3 file
type MP3Source struct {
	file    *os.File
	decoder *mp3.Decoder
	format  audio.Format
	pcm     *PCMSource
}

// OpenMP3 creates a new MP3 source
func OpenMP3(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	// go-mp3 always outputs 16-bit little-endian stereo
	format := audio.Format{
		Encoding:   audio.EncodingPCM,
		SampleRate: decoder.SampleRate(),
		Channels:   2,
		BitDepth:   16,
	}
	pcm, err := NewPCM(decoder, format)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"file":   path,
		"format": format.String(),
		"bytes":  decoder.Length(),
	}).Debug("Loaded MP3")

	return &MP3Source{file: f, decoder: decoder, format: format, pcm: pcm}, nil
}

// Format returns the decoded stream format
func (s *MP3Source) Format() audio.Format { return s.format }

// Read fills p with whole decoded frames
func (s *MP3Source) Read(p []byte) (int, error) {
	n, err := s.pcm.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("mp3 decode error: %w", err)
	}
	return n, err
}

// Close releases the file
func (s *MP3Source) Close() error {
	return s.file.Close()
}
