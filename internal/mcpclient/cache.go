package mcpclient

import (
	"sync"
	"time"
)

// cacheEntry holds a cached capability result alongside its expiry.
type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// capabilityCache caches results keyed by (serverID, capability), each
// with its own TTL per the specification's distinct
// cache_tools_ttl/cache_resources_ttl/health values.
type capabilityCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newCapabilityCache() *capabilityCache {
	return &capabilityCache{entries: make(map[string]cacheEntry)}
}

func cacheKey(serverID string, cap Capability) string {
	return serverID + ":" + string(cap)
}

func (c *capabilityCache) get(serverID string, cap Capability) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(serverID, cap)]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *capabilityCache) set(serverID string, cap Capability, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(serverID, cap)] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// refresh clears every cached capability for a single server.
func (c *capabilityCache) refresh(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cap := range []Capability{CapabilityTools, CapabilityResources, CapabilityPrompts, CapabilitySamples, CapabilityHealth} {
		delete(c.entries, cacheKey(serverID, cap))
	}
}

// TTLs matches the specification's default cache lifetimes.
var TTLs = map[Capability]time.Duration{
	CapabilityTools:     3600 * time.Second,
	CapabilityResources: 1800 * time.Second,
	CapabilityPrompts:   1800 * time.Second,
	CapabilitySamples:   1800 * time.Second,
	CapabilityHealth:    60 * time.Second,
}
