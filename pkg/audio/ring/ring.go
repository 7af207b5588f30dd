// ABOUTME: Fixed-capacity frame ring for one audio stream
// ABOUTME: Owns wraparound math and the staging buffer for views that straddle the wrap
package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity is returned when a request would hold more frames than the ring can
	ErrCapacity = errors.New("ring capacity exceeded")
	// ErrUnderflow is returned when consuming more frames than are held
	ErrUnderflow = errors.New("ring underflow")
	// ErrInvalidSize is returned when committing more frames than a view covers
	ErrInvalidSize = errors.New("invalid frame count")
	// ErrForeignView is returned when a view was produced by another ring
	ErrForeignView = errors.New("view does not belong to ring")
)

// Ring is a circular buffer of fixed-size frames.
//
// readOffset is the first held frame and held the number of frames buffered;
// the write position is readOffset+held modulo capacity. A Ring is not safe
// for concurrent use, its owner serialises access.
type Ring struct {
	buf        []byte
	frameSize  int
	capacity   int
	readOffset int
	held       int

	// staging backs views whose run wraps past the end of buf
	staging []byte
}

// New creates a ring holding capacity frames of frameSize bytes
func New(capacity, frameSize int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidSize, capacity)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("%w: frame size %d", ErrInvalidSize, frameSize)
	}

	return &Ring{
		buf:       make([]byte, capacity*frameSize),
		frameSize: frameSize,
		capacity:  capacity,
	}, nil
}

// Capacity returns the ring size in frames
func (r *Ring) Capacity() int { return r.capacity }

// Held returns the number of buffered frames
func (r *Ring) Held() int { return r.held }

// Free returns the number of frames that can still be buffered
func (r *Ring) Free() int { return r.capacity - r.held }

// FrameSize returns bytes per frame
func (r *Ring) FrameSize() int { return r.frameSize }

// ReadOffset returns the frame index of the first held frame
func (r *Ring) ReadOffset() int { return r.readOffset }

func (r *Ring) writeOffset() int {
	return (r.readOffset + r.held) % r.capacity
}

// Acquire returns a writable view of n frames at the write position.
// The view is a direct slice of the ring unless the run wraps, in which
// case it is the staging buffer prefilled with the ring contents it covers.
func (r *Ring) Acquire(n int) (View, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d frames", ErrInvalidSize, n)
	}
	if r.held+n > r.capacity {
		return nil, fmt.Errorf("%w: %d held + %d requested > %d", ErrCapacity, r.held, n, r.capacity)
	}
	return r.view(r.writeOffset(), n), nil
}

// Peek returns a readable view of the first n held frames
func (r *Ring) Peek(n int) (View, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d frames", ErrInvalidSize, n)
	}
	if n > r.held {
		return nil, fmt.Errorf("%w: %d requested > %d held", ErrUnderflow, n, r.held)
	}
	return r.view(r.readOffset, n), nil
}

func (r *Ring) view(offset, n int) View {
	if offset+n <= r.capacity {
		start := offset * r.frameSize
		return &DirectView{
			owner:  r,
			offset: offset,
			frames: n,
			bytes:  r.buf[start : start+n*r.frameSize : start+n*r.frameSize],
		}
	}

	size := n * r.frameSize
	if cap(r.staging) < size {
		r.staging = make([]byte, size)
	}
	staging := r.staging[:size:size]

	tail := r.buf[offset*r.frameSize:]
	copied := copy(staging, tail)
	copy(staging[copied:], r.buf)

	return &StagingView{
		owner:  r,
		offset: offset,
		frames: n,
		bytes:  staging,
	}
}

// Commit makes the first n frames of a writable view part of the held data
func (r *Ring) Commit(v View, n int) error {
	if n < 0 || n > v.Frames() {
		return fmt.Errorf("%w: commit %d of %d frames", ErrInvalidSize, n, v.Frames())
	}
	if n == 0 {
		return nil
	}
	if r.held+n > r.capacity {
		return fmt.Errorf("%w: %d held + %d committed > %d", ErrCapacity, r.held, n, r.capacity)
	}

	switch v := v.(type) {
	case *DirectView:
		if v.owner != r {
			return ErrForeignView
		}
	case *StagingView:
		if v.owner != r {
			return ErrForeignView
		}
		r.copyIn(v.offset, v.bytes[:n*r.frameSize])
	}

	r.held += n
	r.check()
	return nil
}

// copyIn writes p into the ring starting at frame offset, wrapping at the end
func (r *Ring) copyIn(offset int, p []byte) {
	copied := copy(r.buf[offset*r.frameSize:], p)
	copy(r.buf, p[copied:])
}

// Consume drops n frames from the read side
func (r *Ring) Consume(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d frames", ErrInvalidSize, n)
	}
	if n > r.held {
		return fmt.Errorf("%w: consume %d > %d held", ErrUnderflow, n, r.held)
	}

	r.readOffset = (r.readOffset + n) % r.capacity
	r.held -= n
	r.check()
	return nil
}

// ReadSegments returns up to two byte slices covering the first n held frames
func (r *Ring) ReadSegments(n int) (first, second []byte, err error) {
	if n < 0 || n > r.held {
		return nil, nil, fmt.Errorf("%w: read %d > %d held", ErrUnderflow, n, r.held)
	}
	first, second = r.segments(r.readOffset, n)
	return first, second, nil
}

// WriteSegments returns up to two byte slices covering n free frames at the
// write position. Produce makes them part of the held data.
func (r *Ring) WriteSegments(n int) (first, second []byte, err error) {
	if n < 0 || r.held+n > r.capacity {
		return nil, nil, fmt.Errorf("%w: %d held + %d requested > %d", ErrCapacity, r.held, n, r.capacity)
	}
	first, second = r.segments(r.writeOffset(), n)
	return first, second, nil
}

func (r *Ring) segments(offset, n int) (first, second []byte) {
	if n == 0 {
		return nil, nil
	}
	start := offset * r.frameSize
	if offset+n <= r.capacity {
		return r.buf[start : start+n*r.frameSize], nil
	}
	wrapped := offset + n - r.capacity
	return r.buf[start:], r.buf[:wrapped*r.frameSize]
}

// Produce adds n frames written through WriteSegments to the held data
func (r *Ring) Produce(n int) error {
	if n < 0 || r.held+n > r.capacity {
		return fmt.Errorf("%w: %d held + %d produced > %d", ErrCapacity, r.held, n, r.capacity)
	}
	r.held += n
	r.check()
	return nil
}

// Reset drops all held frames and rewinds the offsets
func (r *Ring) Reset() {
	r.readOffset = 0
	r.held = 0
}

func (r *Ring) check() {
	if r.held < 0 || r.held > r.capacity || r.readOffset < 0 || r.readOffset >= r.capacity {
		panic(fmt.Sprintf("ring: invariant violated: held=%d readOffset=%d capacity=%d",
			r.held, r.readOffset, r.capacity))
	}
}
