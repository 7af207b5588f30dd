//go:build linux

// ABOUTME: OSS /dev/dsp device backend
// ABOUTME: Programs and drives an OSS PCM file descriptor through ioctls
package device

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// OSS ioctl requests and sample formats from <sys/soundcard.h>
const (
	sndctlDspReset     = 0x00005000
	sndctlDspSpeed     = 0xc0045002
	sndctlDspSetFmt    = 0xc0045005
	sndctlDspChannels  = 0xc0045006
	sndctlDspGetFmts   = 0x8004500b
	sndctlDspGetOSpace = 0x8010500c
	sndctlDspGetISpace = 0x8010500d
	sndctlDspGetODelay = 0x80045017
	sndctlDspGetError  = 0x80685019

	afmtU8    = 0x00000008
	afmtS16LE = 0x00000010
	afmtS32LE = 0x00001000
	afmtFloat = 0x00004000
	afmtS24LE = 0x00008000
)

// audioBufInfo mirrors struct audio_buf_info
type audioBufInfo struct {
	Fragments  int32
	FragsTotal int32
	FragSize   int32
	Bytes      int32
}

// audioErrInfo mirrors struct audio_errinfo
type audioErrInfo struct {
	PlayUnderruns  int32
	RecOverruns    int32
	PlayPtrAdjust  uint32
	RecPtrAdjust   uint32
	PlayErrorCount int32
	RecErrorCount  int32
	PlayLastError  int32
	RecLastError   int32
	PlayErrorParm  int32
	RecErrorParm   int32
	Filler         [16]int32
}

// OSS is a Device backed by an OSS dsp node
type OSS struct {
	mu     sync.Mutex
	id     string
	path   string
	dir    Direction
	fd     int
	caps   Caps
	format audio.Format
	closed bool
}

// OpenOSS opens an OSS dsp node in non-blocking mode.
// id "default" maps to /dev/dsp, anything else is used as the path.
func OpenOSS(id string, dir Direction) (Device, error) {
	path := id
	if id == "" || id == "default" {
		path = "/dev/dsp"
	}

	flags := unix.O_WRONLY
	if dir == Capture {
		flags = unix.O_RDONLY
	}

	fd, err := unix.Open(path, flags|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	d := &OSS{id: id, path: path, dir: dir, fd: fd}

	mask, err := d.ioctlInt(sndctlDspGetFmts, 0)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to query formats of %s: %w", path, err)
	}
	d.caps = capsFromMask(mask)

	logrus.WithFields(logrus.Fields{
		"path":      path,
		"direction": dir,
		"formats":   fmt.Sprintf("%#x", mask),
	}).Debug("OSS device opened")

	return d, nil
}

func capsFromMask(mask int) Caps {
	caps := DefaultCaps()
	caps.Encodings = nil
	caps.BitDepths = nil

	for _, f := range []struct {
		bit   int
		depth int
	}{{afmtU8, 8}, {afmtS16LE, 16}, {afmtS24LE, 24}, {afmtS32LE, 32}} {
		if mask&f.bit != 0 {
			caps.BitDepths = append(caps.BitDepths, f.depth)
		}
	}
	if len(caps.BitDepths) > 0 {
		caps.Encodings = append(caps.Encodings, audio.EncodingPCM)
	}
	if mask&afmtFloat != 0 {
		caps.Encodings = append(caps.Encodings, audio.EncodingFloat)
	}
	return caps
}

func ossFormat(f audio.Format) (int, error) {
	if f.Encoding == audio.EncodingFloat {
		if f.BitDepth != 32 {
			return 0, fmt.Errorf("%w: %d-bit float", ErrUnsupported, f.BitDepth)
		}
		return afmtFloat, nil
	}
	switch f.BitDepth {
	case 8:
		return afmtU8, nil
	case 16:
		return afmtS16LE, nil
	case 24:
		return afmtS24LE, nil
	case 32:
		return afmtS32LE, nil
	}
	return 0, fmt.Errorf("%w: %d-bit pcm", ErrUnsupported, f.BitDepth)
}

func depthFromOSS(afmt int) (audio.Encoding, int) {
	switch afmt {
	case afmtU8:
		return audio.EncodingPCM, 8
	case afmtS16LE:
		return audio.EncodingPCM, 16
	case afmtS24LE:
		return audio.EncodingPCM, 24
	case afmtS32LE:
		return audio.EncodingPCM, 32
	case afmtFloat:
		return audio.EncodingFloat, 32
	}
	return audio.EncodingPCM, 0
}

func (d *OSS) ioctlInt(req uint, value int) (int, error) {
	v := int32(value)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(req), uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return 0, errno
	}
	return int(v), nil
}

// recOverruns wraps SNDCTL_DSP_GETERROR, which clears the counters it returns.
// Drivers without the call report no overruns.
func (d *OSS) recOverruns() int {
	var ei audioErrInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(sndctlDspGetError), uintptr(unsafe.Pointer(&ei)))
	if errno != 0 {
		return 0
	}
	return int(ei.RecOverruns)
}

func (d *OSS) bufInfo(req uint) (audioBufInfo, error) {
	var bi audioBufInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(req), uintptr(unsafe.Pointer(&bi)))
	if errno != 0 {
		return bi, errno
	}
	return bi, nil
}

func (d *OSS) ID() string           { return d.id }
func (d *OSS) Direction() Direction { return d.dir }
func (d *OSS) Caps() Caps           { return d.caps }

// Format returns the programmed format
func (d *OSS) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

// Configure sets sample format, rate and channels in that order
func (d *OSS) Configure(f audio.Format) (audio.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return audio.Format{}, ErrClosed
	}

	afmt, err := ossFormat(f)
	if err != nil {
		return audio.Format{}, err
	}

	// the format can only be changed on a reset stream
	if _, err := d.ioctlInt(sndctlDspReset, 0); err != nil {
		return audio.Format{}, fmt.Errorf("SNDCTL_DSP_RESET failed: %w", err)
	}

	got, err := d.ioctlInt(sndctlDspSetFmt, afmt)
	if err != nil {
		return audio.Format{}, fmt.Errorf("SNDCTL_DSP_SETFMT failed: %w", err)
	}
	accepted := f
	accepted.Encoding, accepted.BitDepth = depthFromOSS(got)
	if accepted.BitDepth == 0 {
		return audio.Format{}, fmt.Errorf("%w: device picked format %#x", ErrUnsupported, got)
	}

	if accepted.SampleRate, err = d.ioctlInt(sndctlDspSpeed, f.SampleRate); err != nil {
		return audio.Format{}, fmt.Errorf("SNDCTL_DSP_SPEED failed: %w", err)
	}
	if accepted.Channels, err = d.ioctlInt(sndctlDspChannels, f.Channels); err != nil {
		return audio.Format{}, fmt.Errorf("SNDCTL_DSP_CHANNELS failed: %w", err)
	}

	d.format = accepted
	return accepted, nil
}

func (d *OSS) space(req uint) (Space, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Space{}, ErrClosed
	}
	if d.format.FrameSize() == 0 {
		return Space{}, ErrNotConfigured
	}
	bi, err := d.bufInfo(req)
	if err != nil {
		return Space{}, err
	}
	space := Space{FragmentSize: int(bi.FragSize), Bytes: int(bi.Bytes)}
	if req == sndctlDspGetISpace {
		space.Overruns = d.recOverruns()
	}
	return space, nil
}

// WriteSpace wraps SNDCTL_DSP_GETOSPACE
func (d *OSS) WriteSpace() (Space, error) { return d.space(sndctlDspGetOSpace) }

// ReadSpace wraps SNDCTL_DSP_GETISPACE and SNDCTL_DSP_GETERROR
func (d *OSS) ReadSpace() (Space, error) { return d.space(sndctlDspGetISpace) }

// Write writes without blocking; EAGAIN is reported as zero bytes
func (d *OSS) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Write(d.fd, p)
	if errors.Is(err, unix.EAGAIN) {
		return 0, nil
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

// Read reads without blocking; EAGAIN is reported as zero bytes
func (d *OSS) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Read(d.fd, p)
	if errors.Is(err, unix.EAGAIN) {
		return 0, nil
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

// OutputDelay wraps SNDCTL_DSP_GETODELAY
func (d *OSS) OutputDelay() (int, error) {
	d.mu.Lock()
	fs := d.format.FrameSize()
	d.mu.Unlock()

	if fs == 0 {
		return 0, ErrNotConfigured
	}
	bytes, err := d.ioctlInt(sndctlDspGetODelay, 0)
	if err != nil {
		return 0, err
	}
	return bytes / fs, nil
}

// Close closes the file descriptor
func (d *OSS) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return unix.Close(d.fd)
}

func init() {
	Register("oss", OpenerFunc(OpenOSS))
}
