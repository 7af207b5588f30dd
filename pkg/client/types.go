// ABOUTME: Stream modes, flags and packet types of the client protocol
// ABOUTME: Also defines the period event signalled by the engine
package client

import (
	"context"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/ring"
)

// ShareMode selects how the stream uses its device
type ShareMode int

const (
	// ShareModeShared runs at the device default period
	ShareModeShared ShareMode = iota
	// ShareModeExclusive negotiates period and duration against device limits
	ShareModeExclusive
)

func (m ShareMode) String() string {
	if m == ShareModeExclusive {
		return "exclusive"
	}
	return "shared"
}

// StreamFlags modify Initialize
type StreamFlags uint32

const (
	// StreamFlagEventCallback makes the stream signal an Event every period
	StreamFlagEventCallback StreamFlags = 1 << iota

	knownStreamFlags = StreamFlagEventCallback
)

// BufferFlags annotate released and captured buffers
type BufferFlags uint32

const (
	// BufferFlagDataDiscontinuity marks the first packet after captured data was dropped
	BufferFlagDataDiscontinuity BufferFlags = 1 << iota
	// BufferFlagSilent asks the release to replace the data with silence
	BufferFlagSilent
)

// Status qualifies a successful capture acquisition
type Status int

const (
	// StatusOK means the packet carries frames
	StatusOK Status = iota
	// StatusBufferEmpty means nothing was buffered and no acquisition was made
	StatusBufferEmpty
)

// CapturePacket is the result of GetCaptureBuffer
type CapturePacket struct {
	View   ring.View
	Frames int
	Flags  BufferFlags
	Status Status

	// DevicePosition is the stream position of the first frame
	DevicePosition uint64
	// Time is when the packet was handed out
	Time time.Time
}

// Event is signalled once per period on event-driven streams
type Event chan struct{}

// NewEvent creates an unsignalled event
func NewEvent() Event {
	return make(Event, 1)
}

// Signal sets the event without blocking; repeated signals coalesce
func (e Event) Signal() {
	select {
	case e <- struct{}{}:
	default:
	}
}

// Wait blocks until the event is signalled or ctx is done
func (e Event) Wait(ctx context.Context) error {
	select {
	case <-e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
