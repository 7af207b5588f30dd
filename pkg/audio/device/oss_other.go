//go:build !linux

// ABOUTME: OSS backend stub for platforms without /dev/dsp
// ABOUTME: Keeps the backend name registered so configuration errors are explicit
package device

import "fmt"

// OpenOSS reports that OSS is unavailable on this platform
func OpenOSS(id string, dir Direction) (Device, error) {
	return nil, fmt.Errorf("OSS backend is only available on linux")
}

func init() {
	Register("oss", OpenerFunc(OpenOSS))
}
