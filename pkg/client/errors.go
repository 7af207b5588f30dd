// ABOUTME: Sentinel errors returned by audio clients
// ABOUTME: Re-exports ring, negotiation and session sentinels for errors.Is
package client

import (
	"errors"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/negotiate"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/ring"
	"github.com/Resonate-Protocol/resonate-engine/pkg/session"
)

var (
	// ErrNotInitialized is returned by stream operations before Initialize
	ErrNotInitialized = errors.New("client not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize
	ErrAlreadyInitialized = errors.New("client already initialized")
	// ErrNotStopped is returned by Start or Reset on a running stream
	ErrNotStopped = errors.New("stream not stopped")
	// ErrOrdering is returned when acquire and release calls do not alternate
	ErrOrdering = errors.New("buffer acquire/release out of order")
	// ErrInvalidPeriod is returned for period or duration values the device cannot run
	ErrInvalidPeriod = errors.New("invalid device period")
	// ErrDeviceInvalidated is returned when the device cannot be opened or programmed
	ErrDeviceInvalidated = errors.New("device invalidated")
	// ErrEventHandleMissing is returned by Start on an event-driven stream without an event
	ErrEventHandleMissing = errors.New("event handle not set")
	// ErrEventHandleNotExpected is returned by SetEventHandle on a polled stream
	ErrEventHandleNotExpected = errors.New("stream is not event driven")
	// ErrWrongDirection is returned by render calls on capture clients and vice versa
	ErrWrongDirection = errors.New("operation not valid for stream direction")
	// ErrClosed is returned by calls on a closed client or manager
	ErrClosed = errors.New("client closed")

	// ErrCapacity is returned when an acquisition does not fit in the ring
	ErrCapacity = ring.ErrCapacity
	// ErrInvalidSize is returned when releasing more frames than were acquired
	ErrInvalidSize = ring.ErrInvalidSize
	// ErrUnsupportedFormat is returned when the device rejects a format
	ErrUnsupportedFormat = negotiate.ErrUnsupported
	// ErrInvalidArgument is returned for out of range volumes, indices and flags
	ErrInvalidArgument = session.ErrInvalidArgument
	// ErrSessionReleased is returned by session calls after the client released it
	ErrSessionReleased = session.ErrSessionReleased
)
