package finny

import "sync"

// Context is the single shared mutable record visible to every guard,
// action, entry and exit hook across the whole machine tree, including
// submachines (which receive it by reference). Dispatch is single-threaded,
// so hooks never race on it; the mutex covers out-of-band reads by the
// embedder (e.g. assertions in tests, snapshots for logging).
type Context struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{data: make(map[string]any)}
}

// Get retrieves a value by key. Returns nil if the key does not exist.
func (c *Context) Get(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[key]
}

// GetInt retrieves an int value by key, or 0 if absent or another type.
func (c *Context) GetInt(key string) int {
	v, _ := c.Get(key).(int)
	return v
}

// Set stores a value by key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Add increments an int value by delta and returns the new value.
// Missing or non-int values count as 0.
func (c *Context) Add(key string, delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _ := c.data[key].(int)
	v += delta
	c.data[key] = v
	return v
}

// Delete removes a key from the context.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Snapshot returns a defensive copy of all data; modifications to the
// returned map do not affect the context.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]any, len(c.data))
	for k, v := range c.data {
		snapshot[k] = v
	}
	return snapshot
}
