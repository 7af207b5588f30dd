// ABOUTME: Format negotiation package
// ABOUTME: Proposes stream formats to devices and caches verdicts
// Package negotiate decides whether a device can carry a stream format.
//
// Propose programs the device and compares what it accepted with what was
// asked for, producing an Accepted, Corrected or Unsupported verdict. The
// package also owns the speaker-position mask table and the default shared
// mix format.
package negotiate
