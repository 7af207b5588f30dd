// ABOUTME: Audio device boundary package
// ABOUTME: Provides the Device interface and its simulated, OSS, malgo and oto backends
// Package device defines the file-descriptor style device boundary the
// engine drives and the backends that implement it.
//
// A Device is opened once per stream for one direction. It is programmed
// with Configure, then moved data through with non-blocking Write/Read calls
// sized from WriteSpace/ReadSpace. Short transfers are normal.
//
// Backends:
//   - sim:   in-memory fragment device, real-time or manually advanced
//   - oss:   /dev/dsp through OSS ioctls (linux)
//   - malgo: miniaudio through gen2brain/malgo
//   - oto:   render-only through ebitengine/oto
//
// Example:
//
//	opener, err := device.Backend("sim")
//	dev, err := opener.Open("default", device.Render)
//	accepted, err := dev.Configure(format)
//	n, err := dev.Write(pcm)
package device
