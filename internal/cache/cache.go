// Package cache holds the in-process copy of bill documents.
//
// The cache is a convenience view of storage, not a source of truth. Its
// mutex keeps the map itself consistent; it does not serialize the
// read-modify-write cycle of a bill, so two concurrent edits of the same bill
// can still overwrite each other.
package cache

import (
	"sync"

	"github.com/mmynk/divvy/internal/models"
)

// Policy decides when a read must bypass the cache.
type Policy struct {
	// AlwaysFresh forces every read to storage.
	AlwaysFresh bool
}

// Fresh reports whether a read should go to storage.
func (p Policy) Fresh(requested bool) bool {
	return requested || p.AlwaysFresh
}

// BillCache maps bill IDs to documents. Values are cloned on the way in and
// out so callers never share memory with the cache.
type BillCache struct {
	mu    sync.RWMutex
	bills map[string]*models.Bill
}

// New returns an empty cache.
func New() *BillCache {
	return &BillCache{bills: make(map[string]*models.Bill)}
}

// Get returns a copy of the cached bill.
func (c *BillCache) Get(id string) (*models.Bill, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bills[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Put stores a copy of b.
func (c *BillCache) Put(b *models.Bill) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bills[b.ID] = b.Clone()
}

// PutAll stores copies of every bill, overwriting existing entries.
func (c *BillCache) PutAll(bills map[string]*models.Bill) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, b := range bills {
		c.bills[id] = b.Clone()
	}
}

// Delete drops the entry for id.
func (c *BillCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bills, id)
}

// Has reports whether id is cached.
func (c *BillCache) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.bills[id]
	return ok
}

// Len returns the number of cached bills.
func (c *BillCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bills)
}

// Snapshot returns copies of every cached bill.
func (c *BillCache) Snapshot() map[string]*models.Bill {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*models.Bill, len(c.bills))
	for id, b := range c.bills {
		out[id] = b.Clone()
	}
	return out
}
