// ABOUTME: Periodic I/O engine package
// ABOUTME: Scheduler plus the render and capture pumps
// Package engine drives audio streams against their devices.
//
// A Scheduler fires callbacks on a fixed period and joins them on cancel.
// RenderPump and CapturePump move frames between a client ring and a
// non-blocking device once per firing.
package engine
