// ABOUTME: Stream format negotiation against a device handle
// ABOUTME: Programs depth, rate and channels and reports accepted, corrected or unsupported
package negotiate

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/sirupsen/logrus"
)

// ErrUnsupported is wrapped by Propose when the verdict is Unsupported
var ErrUnsupported = errors.New("unsupported stream format")

// Verdict is the outcome of a negotiation
type Verdict int

const (
	// Accepted means the device runs the requested format unchanged
	Accepted Verdict = iota
	// Corrected means the device runs the closest format in Result.Format
	Corrected
	// Unsupported means the device cannot run the format at all
	Unsupported
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Corrected:
		return "corrected"
	case Unsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Result carries the verdict and, for Accepted and Corrected, the format
type Result struct {
	Verdict Verdict
	Format  audio.Format
}

// Propose programs target with requested and reports how the device took it.
// With queryOnly the previously programmed format is restored afterwards.
//
// An Unsupported verdict is returned together with an error wrapping
// ErrUnsupported; other errors are device failures.
func Propose(target device.Device, requested audio.Format, queryOnly bool) (Result, error) {
	unsupported := func(reason error) (Result, error) {
		return Result{Verdict: Unsupported}, fmt.Errorf("%w: %v", ErrUnsupported, reason)
	}

	if err := requested.Validate(); err != nil {
		return unsupported(err)
	}
	if !target.Caps().SupportsEncoding(requested.Encoding) {
		return unsupported(fmt.Errorf("encoding %v not advertised by %s", requested.Encoding, target.ID()))
	}
	if _, err := ChannelMask(requested.Channels); err != nil {
		return unsupported(err)
	}

	previous := target.Format()

	accepted, err := target.Configure(requested)
	if err != nil {
		if errors.Is(err, device.ErrUnsupported) {
			return unsupported(err)
		}
		return Result{Verdict: Unsupported}, fmt.Errorf("failed to program %s: %w", target.ID(), err)
	}

	if queryOnly && previous.FrameSize() > 0 && previous != accepted {
		if _, err := target.Configure(previous); err != nil {
			logrus.WithError(err).WithField("device", target.ID()).Warn("Failed to restore device format after probe")
		}
	}

	return compare(requested, accepted)
}

// compare turns what the device accepted into a verdict
func compare(requested, accepted audio.Format) (Result, error) {
	if accepted.Encoding == requested.Encoding &&
		accepted.BitDepth == requested.BitDepth &&
		accepted.SampleRate == requested.SampleRate &&
		accepted.Channels == requested.Channels {
		return Result{Verdict: Accepted, Format: requested}, nil
	}

	corrected := accepted
	corrected.ChannelMask = requested.ChannelMask
	if accepted.Channels != requested.Channels || requested.ChannelMask != 0 {
		mask, err := ChannelMask(accepted.Channels)
		if err != nil {
			return Result{Verdict: Unsupported}, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		corrected.ChannelMask = mask
	}

	logrus.WithFields(logrus.Fields{
		"requested": requested.String(),
		"corrected": corrected.String(),
	}).Debug("Format corrected by device")

	return Result{Verdict: Corrected, Format: corrected}, nil
}

// MixFormat derives the default shared-mode format from device capabilities:
// 32-bit float when advertised, otherwise the widest PCM depth, stereo when
// possible and the preferred rate.
func MixFormat(caps device.Caps) audio.Format {
	f := audio.Format{
		Encoding:   audio.EncodingPCM,
		SampleRate: caps.ClampRate(caps.PreferredRate),
		Channels:   caps.ClampChannels(2),
	}

	if caps.SupportsEncoding(audio.EncodingFloat) {
		f.Encoding = audio.EncodingFloat
		f.BitDepth = 32
	} else {
		for _, d := range caps.BitDepths {
			if d > f.BitDepth {
				f.BitDepth = d
			}
		}
	}

	if mask, err := ChannelMask(f.Channels); err == nil {
		f.ChannelMask = mask
	}
	return f
}
