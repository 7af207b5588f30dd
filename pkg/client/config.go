// ABOUTME: Engine-wide client configuration
// ABOUTME: Defaults for pump headroom, software volume and probe caching
package client

import (
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio/negotiate"
	"github.com/Resonate-Protocol/resonate-engine/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds Manager configuration
type Config struct {
	// HeadroomFragments bounds how many period quanta a render pump keeps
	// queued in the device (default: 3)
	HeadroomFragments int

	// SoftwareVolume applies session and stream volume to rendered samples.
	// When false volumes are stored but only mute affects the output.
	SoftwareVolume bool

	// ProbeCacheTTL is how long IsFormatSupported results are reused (default: 30s)
	ProbeCacheTTL time.Duration

	// Registry receives the engine metrics; nil creates a private registry
	Registry *prometheus.Registry
}

func (c Config) withDefaults() Config {
	if c.HeadroomFragments <= 0 {
		c.HeadroomFragments = engine.DefaultHeadroomFragments
	}
	if c.ProbeCacheTTL <= 0 {
		c.ProbeCacheTTL = negotiate.DefaultCacheTTL
	}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
	return c
}
