// ABOUTME: Source interface definition
// ABOUTME: Common interface for all frame sources and file type detection
package decode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
)

// ErrUnsupportedFile is returned by Open for unknown file types
var ErrUnsupportedFile = errors.New("unsupported audio file")

// Source produces interleaved audio frames
type Source interface {
	// Format returns the format of the frames Read produces
	Format() audio.Format

	// Read fills p with whole frames and returns the bytes written.
	// It returns io.EOF once the source is exhausted.
	Read(p []byte) (int, error)

	// Close releases source resources
	Close() error
}

// Open creates a source for a local file, chosen by extension
func Open(path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return OpenWAV(path)
	case ".mp3":
		return OpenMP3(path)
	case ".opus", ".ogg":
		return OpenOpus(path)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .wav, .mp3, .opus)", ErrUnsupportedFile, ext)
	}
}

// wholeFrames trims n down to a multiple of the frame size
func wholeFrames(n, frameSize int) int {
	if frameSize <= 0 {
		return 0
	}
	return n - n%frameSize
}
