// ABOUTME: Audio session package
// ABOUTME: Shared volume contexts for clients on one device
// Package session groups audio clients that share a volume context.
//
// Clients joining with the same session uuid on the same device share master
// volume, mute and a per-channel volume vector. The Registry is an explicit
// context object; callers hold Handles and release them when done.
package session
