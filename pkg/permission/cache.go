package permission

import (
	"maps"
	"sync"
)

// Cache memoizes the group permissions of each identity. It belongs to
// whoever builds the Graph; nothing in this package shares one
// implicitly. The owner must call Invalidate or InvalidateIdentity when
// permission links change.
type Cache struct { // A
	mu      sync.Mutex
	entries map[string]map[string]Level
}

// NewCache creates an empty Cache.
func NewCache() *Cache { // A
	return &Cache{
		entries: make(map[string]map[string]Level),
	}
}

// get returns a copy of the cached permissions of uuid.
func (c *Cache) get(uuid string) (map[string]Level, bool) { // A
	c.mu.Lock()
	defer c.mu.Unlock()

	perms, ok := c.entries[uuid]
	if !ok {
		return nil, false
	}
	return maps.Clone(perms), true
}

func (c *Cache) put(uuid string, perms map[string]Level) { // A
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[uuid] = maps.Clone(perms)
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() { // A
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.entries)
}

// InvalidateIdentity drops the entry of one identity.
func (c *Cache) InvalidateIdentity(uuid string) { // A
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, uuid)
}

// Len returns the number of cached identities.
func (c *Cache) Len() int { // A
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
