// ABOUTME: Audio client package
// ABOUTME: Buffered streams with clock and volume control
// Package client implements buffered, session-aware audio streams.
//
// A Manager is the process-wide context: it owns the device opener, the
// session registry, the periodic scheduler and the probe cache. Each Client
// opens its own device handle, negotiates a format, allocates a ring and,
// once started, is drained (render) or filled (capture) once per period.
//
// Applications move audio with the acquire/release protocol:
//
//	view, err := c.GetRenderBuffer(n)
//	// write n frames into view.Bytes()
//	err = c.ReleaseRenderBuffer(n, 0)
//
// Only one acquisition may be outstanding at a time.
package client
