// ABOUTME: Speaker position masks for standard channel layouts
// ABOUTME: Table-driven mapping from channel count to channel mask
package negotiate

import (
	"errors"
	"fmt"
)

// Speaker position bits
const (
	SpeakerFrontLeft          uint32 = 0x1
	SpeakerFrontRight         uint32 = 0x2
	SpeakerFrontCenter        uint32 = 0x4
	SpeakerLowFrequency       uint32 = 0x8
	SpeakerBackLeft           uint32 = 0x10
	SpeakerBackRight          uint32 = 0x20
	SpeakerFrontLeftOfCenter  uint32 = 0x40
	SpeakerFrontRightOfCenter uint32 = 0x80
	SpeakerBackCenter         uint32 = 0x100
)

// ErrInvalidChannels is returned for channel counts without a layout
var ErrInvalidChannels = errors.New("no channel layout for channel count")

const (
	layoutStereo = SpeakerFrontLeft | SpeakerFrontRight
	layoutQuad   = layoutStereo | SpeakerBackLeft | SpeakerBackRight
	layout51     = layoutStereo | SpeakerFrontCenter | SpeakerLowFrequency | SpeakerBackLeft | SpeakerBackRight
)

var channelMasks = [...]uint32{
	0,
	SpeakerFrontCenter,
	layoutStereo,
	layoutStereo | SpeakerLowFrequency,
	layoutQuad,
	layoutQuad | SpeakerLowFrequency,
	layout51,
	layout51 | SpeakerBackCenter,
	layout51 | SpeakerFrontLeftOfCenter | SpeakerFrontRightOfCenter,
}

// ChannelMask returns the speaker mask for a channel count between 0 and 8
func ChannelMask(channels int) (uint32, error) {
	if channels < 0 || channels >= len(channelMasks) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}
	return channelMasks[channels], nil
}
