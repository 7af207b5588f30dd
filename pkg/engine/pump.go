// ABOUTME: Per-period transfer between a client ring and its device
// ABOUTME: Render pump with bounded device headroom and capture pump with overflow detection
package engine

import (
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/ring"
	"github.com/sirupsen/logrus"
)

// DefaultHeadroomFragments is how many quanta the render pump keeps queued
const DefaultHeadroomFragments = 3

// RenderResult reports one render pump firing
type RenderResult struct {
	Written  int  // frames the device accepted
	Queued   int  // frames in the device before the write
	Skipped  bool // the device query failed, nothing was attempted
	Underrun bool // the device ran dry since the previous firing
}

// RenderPump drains a render ring into its device
type RenderPump struct {
	Device            device.Device
	Format            audio.Format
	PeriodFrames      int
	HeadroomFragments int

	// deviceFrames is the largest free space ever reported, taken as the
	// device buffer size
	deviceFrames int
	lastQueued   int
	scratch      []byte
}

// Reset forgets what the pump learned about the device queue
func (p *RenderPump) Reset() {
	p.lastQueued = 0
}

func (p *RenderPump) quantum(fragmentFrames int) int {
	q := p.PeriodFrames
	if q <= 0 {
		q = 1
	}
	if fragmentFrames > q {
		q = (fragmentFrames + q - 1) / q * q
	}
	return q
}

// Pump writes held frames to the device while keeping at most
// HeadroomFragments quanta queued there. The caller serialises access to r.
func (p *RenderPump) Pump(r *ring.Ring, vol Volume) RenderResult {
	var res RenderResult
	if r.Held() == 0 {
		return res
	}

	fs := p.Format.FrameSize()
	space, err := p.Device.WriteSpace()
	if err != nil {
		logrus.WithError(err).WithField("device", p.Device.ID()).Debug("Write space query failed, skipping period")
		res.Skipped = true
		return res
	}

	free := space.Bytes / fs
	if free > p.deviceFrames {
		p.deviceFrames = free
	}
	res.Queued = p.deviceFrames - free
	if res.Queued == 0 && p.lastQueued > 0 {
		res.Underrun = true
	}

	headroom := p.HeadroomFragments
	if headroom <= 0 {
		headroom = DefaultHeadroomFragments
	}
	limit := headroom*p.quantum(space.FragmentSize/fs) - res.Queued
	if limit > free {
		limit = free
	}
	if limit > r.Held() {
		limit = r.Held()
	}
	if limit <= 0 {
		p.lastQueued = res.Queued
		return res
	}

	first, second, err := r.ReadSegments(limit)
	if err != nil {
		res.Skipped = true
		return res
	}

	var written int
	if vol.Unity() {
		written = p.write(first, second)
	} else {
		written = p.writeScaled(first, second, vol)
	}

	frames := written / fs
	if frames > 0 {
		if err := r.Consume(frames); err != nil {
			logrus.WithError(err).Warn("Render ring consume failed")
		}
	}
	res.Written = frames
	p.lastQueued = res.Queued + frames
	return res
}

// write sends up to two segments, stopping at the first short write
func (p *RenderPump) write(first, second []byte) int {
	total := 0
	for _, seg := range [][]byte{first, second} {
		if len(seg) == 0 {
			continue
		}
		n, err := p.Device.Write(seg)
		total += n
		if err != nil {
			logrus.WithError(err).WithField("device", p.Device.ID()).Debug("Device write failed")
			break
		}
		if n < len(seg) {
			break
		}
	}
	return total
}

// writeScaled applies the volume to a copy so frames the device refuses
// keep their original samples
func (p *RenderPump) writeScaled(first, second []byte, vol Volume) int {
	size := len(first) + len(second)
	if cap(p.scratch) < size {
		p.scratch = make([]byte, size)
	}
	buf := p.scratch[:size]
	copy(buf, first)
	copy(buf[len(first):], second)

	ApplyGain(buf, p.Format, vol)
	return p.write(buf, nil)
}

// CaptureResult reports one capture pump firing
type CaptureResult struct {
	Read     int  // frames moved into the ring
	Overflow bool // the device dropped captured data since the last firing
	Skipped  bool
}

// CapturePump fills a capture ring from its device
type CapturePump struct {
	Device device.Device
	Format audio.Format
}

// Pump reads min(available, free) frames into the ring. Frames that do not
// fit stay queued on the device; only device overruns count as overflow.
// The caller serialises access to r.
func (p *CapturePump) Pump(r *ring.Ring) CaptureResult {
	var res CaptureResult

	fs := p.Format.FrameSize()
	space, err := p.Device.ReadSpace()
	if err != nil {
		logrus.WithError(err).WithField("device", p.Device.ID()).Debug("Read space query failed, skipping period")
		res.Skipped = true
		return res
	}

	res.Overflow = space.Overruns > 0
	n := min(space.Bytes/fs, r.Free())
	if n <= 0 {
		return res
	}

	first, second, err := r.WriteSegments(n)
	if err != nil {
		res.Skipped = true
		return res
	}

	total := 0
	for _, seg := range [][]byte{first, second} {
		if len(seg) == 0 {
			continue
		}
		got, err := p.Device.Read(seg)
		total += got
		if err != nil {
			logrus.WithError(err).WithField("device", p.Device.ID()).Debug("Device read failed")
			break
		}
		if got < len(seg) {
			break
		}
	}

	frames := total / fs
	if frames > 0 {
		if err := r.Produce(frames); err != nil {
			logrus.WithError(err).Warn("Capture ring produce failed")
		}
	}
	res.Read = frames
	return res
}
