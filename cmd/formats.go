// ABOUTME: formats command and shared format flags
// ABOUTME: Reports device mix format, periods and whether a format is supported
package cmd

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/device"
	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/negotiate"
	"github.com/spf13/cobra"
)

// formatFlags binds a stream format to command flags
type formatFlags struct {
	rate     int
	channels int
	bits     int
	float    bool
}

func (f *formatFlags) register(cmd *cobra.Command, def audio.Format) {
	cmd.Flags().IntVar(&f.rate, "rate", def.SampleRate, "Sample rate in Hz")
	cmd.Flags().IntVar(&f.channels, "channels", def.Channels, "Channel count")
	cmd.Flags().IntVar(&f.bits, "bits", def.BitDepth, "Bits per sample")
	cmd.Flags().BoolVar(&f.float, "float", def.Encoding == audio.EncodingFloat, "Use IEEE float samples")
}

func (f *formatFlags) format() audio.Format {
	enc := audio.EncodingPCM
	if f.float {
		enc = audio.EncodingFloat
	}
	return audio.Format{
		Encoding:   enc,
		SampleRate: f.rate,
		Channels:   f.channels,
		BitDepth:   f.bits,
	}
}

func formatsCommand(a *app) *cobra.Command {
	var (
		format  formatFlags
		capture bool
	)

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "Show device formats and test a stream format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := device.Render
			if capture {
				dir = device.Capture
			}

			m, err := a.manager()
			if err != nil {
				return err
			}
			defer m.Close()

			c, err := m.NewClient(a.settings.Device, dir)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()

			mix, err := c.MixFormat()
			if err != nil {
				return err
			}
			defaultPeriod, minimumPeriod, err := c.DevicePeriod()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Device:         %s (%s, %s)\n", c.DeviceID(), dir, a.settings.Backend)
			fmt.Fprintf(out, "Mix format:     %s\n", mix)
			fmt.Fprintf(out, "Default period: %s\n", defaultPeriod)
			fmt.Fprintf(out, "Minimum period: %s\n", minimumPeriod)

			mode := a.settings.ShareMode()
			want := format.format()
			res, err := c.IsFormatSupported(mode, want)
			if err != nil && res.Verdict != negotiate.Unsupported {
				return err
			}

			fmt.Fprintf(out, "%s %s: %s", mode, want, res.Verdict)
			if res.Verdict == negotiate.Corrected {
				fmt.Fprintf(out, " (closest %s)", res.Format)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&capture, "capture", false, "Query the capture side of the device")
	format.register(cmd, audio.Format{Encoding: audio.EncodingPCM, SampleRate: 48000, Channels: 2, BitDepth: 16})

	return cmd
}
