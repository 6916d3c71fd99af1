package cache

import (
	"sync"

	"github.com/attachkit/linkcore/pkg/core"
)

// LinkTypeCache maps link type names to their constraint configs for the
// current session
type LinkTypeCache struct {
	mu    sync.RWMutex
	types map[string]core.ConstraintConfig
}

// NewLinkTypeCache creates a new LinkTypeCache
func NewLinkTypeCache() *LinkTypeCache {
	return &LinkTypeCache{
		types: make(map[string]core.ConstraintConfig),
	}
}

// Get retrieves a constraint config by link type name
func (c *LinkTypeCache) Get(name string) (core.ConstraintConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.types[name]
	return cfg, ok
}

// Set stores a constraint config by link type name
func (c *LinkTypeCache) Set(name string, cfg core.ConstraintConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name] = cfg
}

// Delete removes a link type by name
func (c *LinkTypeCache) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.types, name)
}

// Reset clears all link types from the cache
func (c *LinkTypeCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = make(map[string]core.ConstraintConfig)
}
