// ABOUTME: Tests for audio sources
// ABOUTME: Tests sample codec, raw PCM, conversion, tone, WAV round trips and Opus headers
package decode

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	s16 = audio.Format{Encoding: audio.EncodingPCM, SampleRate: 8000, Channels: 2, BitDepth: 16}
	s24 = audio.Format{Encoding: audio.EncodingPCM, SampleRate: 8000, Channels: 2, BitDepth: 24}
	f32 = audio.Format{Encoding: audio.EncodingFloat, SampleRate: 8000, Channels: 2, BitDepth: 32}
	u8  = audio.Format{Encoding: audio.EncodingPCM, SampleRate: 8000, Channels: 2, BitDepth: 8}
)

func TestDecodeSamples16Bit(t *testing.T) {
	// 0x0100 = 256 (16-bit) -> 256<<8 (24-bit)
	input := []byte{0x00, 0x01, 0x02, 0x03}
	out := make([]int32, 2)

	n := DecodeSamples(out, input, s16)
	require.Equal(t, 2, n)
	assert.Equal(t, int32(256<<8), out[0])
	assert.Equal(t, int32(770<<8), out[1])
}

func TestDecodeSamplesUnsigned8Bit(t *testing.T) {
	out := make([]int32, 3)
	DecodeSamples(out, []byte{0x80, 0x00, 0xFF}, u8)

	assert.Equal(t, int32(0), out[0])
	assert.Equal(t, int32(-128<<16), out[1])
	assert.Equal(t, int32(127<<16), out[2])
}

func TestEncodeSamplesClampsFloat(t *testing.T) {
	p := make([]byte, 8)
	n := EncodeSamples(p, []int32{audio.Max24Bit + 100, audio.Min24Bit}, f32)
	require.Equal(t, 8, n)

	first := math32(p[0:4])
	second := math32(p[4:8])
	assert.InDelta(t, 1.0, first, 1e-6)
	assert.InDelta(t, -1.0, second, 1e-6)
}

func math32(b []byte) float64 {
	var f float32
	_ = binary.Read(bytes.NewReader(b), binary.LittleEndian, &f)
	return float64(f)
}

func TestSample24BitSignPreserved(t *testing.T) {
	p := make([]byte, 3)
	EncodeSamples(p, []int32{-12345}, s24)

	out := make([]int32, 1)
	DecodeSamples(out, p, s24)
	assert.Equal(t, int32(-12345), out[0])
}

func TestPCMSourceCarriesPartialFrames(t *testing.T) {
	// 10 bytes = 2 frames + half a frame of 4-byte stereo frames
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	src, err := NewPCM(iotestHalf(data), s16)
	require.NoError(t, err)

	buf := make([]byte, 6)
	n, err := src.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "only whole frames are returned")
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])

	n, err = src.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{5, 6, 7, 8}, buf[:n])

	n, err = src.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

// iotestHalf returns a reader that hands out at most 3 bytes per call
func iotestHalf(data []byte) io.Reader {
	return &chunkReader{data: data, chunk: 3}
}

type chunkReader struct {
	data  []byte
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(len(p), r.chunk, len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestNewPCMRejectsInvalidFormat(t *testing.T) {
	_, err := NewPCM(bytes.NewReader(nil), audio.Format{Encoding: audio.EncodingPCM, SampleRate: 8000, Channels: 2, BitDepth: 12})
	assert.ErrorIs(t, err, audio.ErrInvalidFormat)
}

func TestToneSource(t *testing.T) {
	tone, err := NewTone(s16, DefaultToneFrequency, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, s16, tone.Format())

	buf := make([]byte, 1000*s16.FrameSize())
	n, err := tone.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 80*s16.FrameSize(), n, "10ms at 8kHz")

	samples := make([]int32, n/2)
	DecodeSamples(samples, buf[:n], s16)
	var peak int32
	for i := 0; i < len(samples); i += 2 {
		assert.Equal(t, samples[i], samples[i+1], "channels carry the same tone")
		if samples[i] > peak {
			peak = samples[i]
		}
	}
	assert.InDelta(t, audio.Max24Bit/2, peak, audio.Max24Bit*0.05)

	_, err = tone.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestToneRejectsFrequencyAboveNyquist(t *testing.T) {
	_, err := NewTone(s16, 4000, 0)
	assert.Error(t, err)
	_, err = NewTone(s16, 0, 0)
	assert.Error(t, err)
}

func TestConverter(t *testing.T) {
	tone, err := NewTone(s16, 1000, 0)
	require.NoError(t, err)

	conv, err := NewConverter(tone, s24)
	require.NoError(t, err)
	assert.Equal(t, s24, conv.Format())

	buf := make([]byte, 16*s24.FrameSize())
	n, err := conv.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	// the second 1kHz sample at 8kHz is sin(pi/4) * half scale, truncated to 16 bits
	out := make([]int32, 4)
	DecodeSamples(out, buf[:12], s24)
	assert.InDelta(t, 0.5*0.7071*audio.Max24Bit, out[2], 512)

	same, err := NewConverter(tone, s16)
	require.NoError(t, err)
	assert.Same(t, tone, same, "matching formats need no converter")

	resample := s16
	resample.SampleRate = 16000
	_, err = NewConverter(tone, resample)
	assert.Error(t, err)
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")

	sink, err := CreateWAV(path, s24)
	require.NoError(t, err)

	frames := make([]byte, 0, 6*s24.FrameSize())
	for i, v := range []int32{0, 1000, -1000, audio.Max24Bit, audio.Min24Bit, 42} {
		b := audio.SampleTo24Bit(v)
		frames = append(frames, b[:]...)
		b = audio.SampleTo24Bit(-v + int32(i))
		frames = append(frames, b[:]...)
	}
	n, err := sink.Write(frames)
	require.NoError(t, err)
	assert.Equal(t, len(frames), n)
	assert.Equal(t, 6, sink.Frames())
	require.NoError(t, sink.Close())

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, s24, src.Format())

	got := make([]byte, len(frames)+s24.FrameSize())
	n, err = src.Read(got)
	require.NoError(t, err)
	assert.Equal(t, frames, got[:n])

	_, err = src.Read(got)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWAVSinkRejectsFloat(t *testing.T) {
	_, err := CreateWAV(filepath.Join(t.TempDir(), "f.wav"), f32)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestOpenUnsupported(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)

	flac := filepath.Join(dir, "track.flac")
	require.NoError(t, os.WriteFile(flac, []byte("fLaC"), 0o644))
	_, err = Open(flac)
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	garbage := filepath.Join(dir, "noise.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not riff"), 0o644))
	_, err = Open(garbage)
	assert.Error(t, err)

	mp3 := filepath.Join(dir, "noise.mp3")
	require.NoError(t, os.WriteFile(mp3, []byte{}, 0o644))
	_, err = Open(mp3)
	assert.Error(t, err)
}

// oggPage builds the start of an Ogg page carrying packet
func oggPage(packet []byte) []byte {
	page := []byte("OggS")
	page = append(page, make([]byte, 23)...) // version .. page segment count
	page = append(page, byte(len(packet)))
	return append(page, packet...)
}

func TestOpusChannels(t *testing.T) {
	opusHead := func(channels byte) []byte {
		return oggPage(append([]byte("OpusHead"), 1, channels, 0x38, 0x01, 0x80, 0xbb, 0, 0, 0, 0, 0))
	}

	tests := []struct {
		name    string
		head    []byte
		want    int
		wantErr bool
	}{
		{"stereo", opusHead(2), 2, false},
		{"mono", opusHead(1), 1, false},
		{"7.1", opusHead(8), 8, false},
		{"zero channels", opusHead(0), 0, true},
		{"vorbis stream", oggPage([]byte("\x01vorbis")), 0, true},
		{"not ogg", []byte("RIFF....WAVE"), 0, true},
		{"truncated head", oggPage([]byte("OpusHead\x01")), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := opusChannels(tt.head)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotOpus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenOpusRejectsOtherData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.opus")
	require.NoError(t, os.WriteFile(path, []byte("definitely not ogg"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrNotOpus)
}
