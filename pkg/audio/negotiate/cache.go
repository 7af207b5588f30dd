// ABOUTME: Probe result cache for format queries
// ABOUTME: Memoizes query-only negotiations per device, share mode and format
package negotiate

import (
	"errors"
	"fmt"
	"time"

	"github.com/Resonate-Protocol/resonate-engine/pkg/audio"
	"github.com/patrickmn/go-cache"
)

// DefaultCacheTTL is how long a probe result stays valid
const DefaultCacheTTL = 30 * time.Second

// Cache remembers probe results so repeated format queries do not reopen
// and reprogram the device
type Cache struct {
	entries *cache.Cache
}

type cached struct {
	result Result
	err    error
}

// NewCache creates a probe cache; ttl <= 0 uses DefaultCacheTTL.
// Expired entries are dropped lazily so no janitor goroutine is started.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{entries: cache.New(ttl, 0)}
}

// Key identifies one probe
func Key(deviceID string, exclusive bool, f audio.Format) string {
	mode := "shared"
	if exclusive {
		mode = "exclusive"
	}
	return fmt.Sprintf("%s|%s|%d|%d|%d|%d|%#x", deviceID, mode, f.Encoding, f.BitDepth, f.SampleRate, f.Channels, f.ChannelMask)
}

// Probe returns the cached result for key or runs probe and stores it.
// Device failures are not cached.
func (c *Cache) Probe(key string, probe func() (Result, error)) (Result, error) {
	if v, ok := c.entries.Get(key); ok {
		hit := v.(cached)
		return hit.result, hit.err
	}

	result, err := probe()
	if err == nil || errors.Is(err, ErrUnsupported) {
		c.entries.SetDefault(key, cached{result: result, err: err})
	}
	return result, err
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}

// Flush drops every entry
func (c *Cache) Flush() {
	c.entries.Flush()
}
