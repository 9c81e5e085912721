package gpu

// DeletionQueue defers destruction of GPU objects until the frame that may
// still reference them has retired. Closures are filed under the slot of the
// frame that is current when they are scheduled and run the next time that
// slot is flushed, which happens after the slot's fence has been waited on.
type DeletionQueue struct {
	slots   [][]func()
	current uint32
}

func NewDeletionQueue(slots uint32) *DeletionQueue {
	if slots == 0 {
		slots = 1
	}
	return &DeletionQueue{
		slots: make([][]func(), slots),
	}
}

// Schedule appends fn to the current frame's slot. Nil closures are ignored.
func (dq *DeletionQueue) Schedule(fn func()) {
	if fn == nil {
		return
	}
	dq.slots[dq.current] = append(dq.slots[dq.current], fn)
}

// Flush makes frameIndex the current frame, then runs and clears its slot in
// scheduling order.
func (dq *DeletionQueue) Flush(frameIndex uint32) {
	dq.current = frameIndex % uint32(len(dq.slots))
	dq.run(dq.current)
}

// FlushAll drains every slot, oldest first. Used at shutdown after the device
// went idle.
func (dq *DeletionQueue) FlushAll() {
	n := uint32(len(dq.slots))
	for i := uint32(1); i <= n; i++ {
		dq.run((dq.current + i) % n)
	}
}

func (dq *DeletionQueue) run(slot uint32) {
	pending := dq.slots[slot]
	dq.slots[slot] = nil
	for _, fn := range pending {
		fn()
	}
}

// Frame returns the slot closures are currently filed under.
func (dq *DeletionQueue) Frame() uint32 {
	return dq.current
}

// Pending returns the number of closures waiting in every slot.
func (dq *DeletionQueue) Pending() int {
	n := 0
	for _, s := range dq.slots {
		n += len(s)
	}
	return n
}
