package entitlement

import (
	"encoding/json"
	"sync"

	"learnhub.org/internal/kvslot"
)

const cacheKey = "purchases"

// Cache mirrors the current identity's purchases on the client side so the
// UI can show ownership without a round trip. It is rebuilt from backend
// responses and persisted wholesale; it never decides access on its own.
type Cache struct {
	mu   sync.Mutex
	slot kvslot.Slot
	ents map[string]Entitlement // courseID -> latest record
}

// NewCache restores any persisted purchase mirror. A record that fails to
// decode is discarded.
func NewCache(slot kvslot.Slot) *Cache {
	c := &Cache{slot: slot, ents: make(map[string]Entitlement)}
	if slot != nil {
		if data, ok, err := slot.Load(cacheKey); err == nil && ok {
			var list []Entitlement
			if json.Unmarshal(data, &list) == nil {
				for _, e := range list {
					c.ents[e.CourseID] = e
				}
			} else {
				_ = slot.Delete(cacheKey)
			}
		}
	}
	return c
}

// Record stores a purchase reported by the backend.
func (c *Cache) Record(ent Entitlement) {
	c.mu.Lock()
	c.ents[ent.CourseID] = ent
	c.persistLocked()
	c.mu.Unlock()
}

// Replace rebuilds the mirror from an authoritative backend listing.
func (c *Cache) Replace(list []Entitlement) {
	c.mu.Lock()
	c.ents = make(map[string]Entitlement, len(list))
	for _, e := range list {
		c.ents[e.CourseID] = e
	}
	c.persistLocked()
	c.mu.Unlock()
}

// Owns reports whether an active record for the course is mirrored locally.
func (c *Cache) Owns(courseID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.ents[courseID]
	return ok && e.Active()
}

// List returns the mirrored records.
func (c *Cache) List() []Entitlement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entitlement, 0, len(c.ents))
	for _, e := range c.ents {
		out = append(out, e)
	}
	return out
}

// Clear drops the mirror, e.g. on logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.ents = make(map[string]Entitlement)
	if c.slot != nil {
		_ = c.slot.Delete(cacheKey)
	}
	c.mu.Unlock()
}

// persistLocked writes the whole mirror in one atomic store.
func (c *Cache) persistLocked() {
	if c.slot == nil {
		return
	}
	list := make([]Entitlement, 0, len(c.ents))
	for _, e := range c.ents {
		list = append(list, e)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	_ = c.slot.Store(cacheKey, data)
}
