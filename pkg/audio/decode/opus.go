// ABOUTME: Ogg Opus file source
// ABOUTME: Decodes Opus streams to 48kHz 16-bit frames through libopusfile
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/sirupsen/logrus"
	"gopkg.in/hraban/opus.v2"
)

// opusRate is the rate libopusfile always decodes at
const opusRate = 48000

// opusHeadScan bounds how far into the file the OpusHead packet is searched
const opusHeadScan = 4096

// ErrNotOpus is returned when no OpusHead packet starts the file
var ErrNotOpus = errors.New("not an ogg opus stream")

// OpusSource reads from an Ogg Opus file
type OpusSource struct {
	file   *os.File
	stream *opus.Stream
	format audio.Format
	pcm    *PCMSource
}

// OpenOpus creates a new Ogg Opus source
func OpenOpus(path string) (*OpusSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open opus file: %w", err)
	}

	head := make([]byte, opusHeadScan)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read opus header: %w", err)
	}
	channels, err := opusChannels(head[:n])
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}

	stream, err := opus.NewStream(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to decode opus: %w", err)
	}

	format := audio.Format{
		Encoding:   audio.EncodingPCM,
		SampleRate: opusRate,
		Channels:   channels,
		BitDepth:   16,
	}
	pcm, err := NewPCM(&opusReader{stream: stream, channels: channels}, format)
	if err != nil {
		_ = stream.Close()
		_ = f.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"file":   path,
		"format": format.String(),
	}).Debug("Loaded Opus")

	return &OpusSource{file: f, stream: stream, format: format, pcm: pcm}, nil
}

// opusChannels reads the output channel count from the OpusHead packet
func opusChannels(head []byte) (int, error) {
	if !bytes.HasPrefix(head, []byte("OggS")) {
		return 0, ErrNotOpus
	}
	i := bytes.Index(head, []byte("OpusHead"))
	// magic(8) version(1) channels(1)
	if i < 0 || i+10 > len(head) {
		return 0, ErrNotOpus
	}
	channels := int(head[i+9])
	if channels < 1 || channels > 8 {
		return 0, fmt.Errorf("%w: %d channels", ErrNotOpus, channels)
	}
	return channels, nil
}

// opusReader exposes decoded samples as little-endian 16-bit bytes
type opusReader struct {
	stream   *opus.Stream
	channels int
	samples  []int16
	pending  []byte
}

func (r *opusReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		// 120ms is the longest opus frame
		if r.samples == nil {
			r.samples = make([]int16, opusRate/1000*120*r.channels)
		}
		n, err := r.stream.Read(r.samples)
		if err != nil {
			return 0, err
		}
		samples := r.samples[:n*r.channels]
		buf := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		}
		r.pending = buf
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Format returns the decoded stream format
func (s *OpusSource) Format() audio.Format { return s.format }

// Read fills p with whole decoded frames
func (s *OpusSource) Read(p []byte) (int, error) {
	n, err := s.pcm.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("opus decode error: %w", err)
	}
	return n, err
}

// Close releases the decoder and the file
func (s *OpusSource) Close() error {
	err := s.stream.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
