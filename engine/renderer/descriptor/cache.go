package descriptor

import (
	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
)

type cacheSlot struct {
	handle Handle
	alive  bool
}

// HandleCache allocates indices of one descriptor array. Freed indices are
// reused last-in first-out, each reuse bumps the index version so handles kept
// past their Free can be told apart from the live one.
type HandleCache struct {
	capacity uint32
	slots    []cacheSlot
	free     *containers.Stack[uint32]
	live     uint32
}

func NewHandleCache(capacity uint32) *HandleCache {
	core.Assert(capacity <= MaxCapacity, "handle cache capacity %d exceeds %d", capacity, MaxCapacity)
	return &HandleCache{
		capacity: capacity,
		slots:    make([]cacheSlot, 0, capacity),
		free:     containers.NewStack[uint32](0),
	}
}

// Fetch returns a fresh handle, preferring the most recently freed index.
// Running out of indices is an invariant violation.
func (c *HandleCache) Fetch(resourceType ResourceType, access Access) Handle {
	if index, ok := c.free.Pop(); ok {
		h := c.slots[index].handle.Recycle(resourceType, access)
		c.slots[index] = cacheSlot{handle: h, alive: true}
		c.live++
		return h
	}

	core.Assert(uint32(len(c.slots)) < c.capacity, "descriptor handle cache exceeded capacity (%d)", c.capacity)
	h := NewHandle(uint32(len(c.slots)), resourceType, access, 0)
	c.slots = append(c.slots, cacheSlot{handle: h, alive: true})
	c.live++
	return h
}

// Free makes the handle's index available again. The handle must be the live
// handle for its index.
func (c *HandleCache) Free(h Handle) {
	core.Assert(c.IsCurrent(h), "freeing stale or unknown descriptor %s", h)
	index := h.Index()
	c.slots[index].alive = false
	c.free.Push(index)
	c.live--
}

// IsCurrent reports whether h is the live handle of its index.
func (c *HandleCache) IsCurrent(h Handle) bool {
	if !h.IsValid() {
		return false
	}
	index := h.Index()
	if index >= uint32(len(c.slots)) {
		return false
	}
	s := c.slots[index]
	return s.alive && s.handle == h
}

func (c *HandleCache) Capacity() uint32 {
	return c.capacity
}

// Len returns the number of live handles.
func (c *HandleCache) Len() uint32 {
	return c.live
}
