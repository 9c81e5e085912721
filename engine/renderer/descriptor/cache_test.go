package descriptor

import "testing"

func TestHandleCacheFetchFree(t *testing.T) {
	c := NewHandleCache(4)
	a := c.Fetch(Buffer, ReadOnly)
	b := c.Fetch(Buffer, ReadOnly)
	if a.Index() != 0 || b.Index() != 1 || a.Version() != 0 {
		t.Fatalf("fresh handles %s, %s", a, b)
	}

	c.Free(a)
	if c.IsCurrent(a) {
		t.Errorf("%s still current after Free", a)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	r := c.Fetch(Texture, ReadWrite)
	if r.Index() != a.Index() {
		t.Errorf("reused index %d, want %d", r.Index(), a.Index())
	}
	if r.Version() != a.Version()+1 {
		t.Errorf("version %d, want %d", r.Version(), a.Version()+1)
	}
	if r.Type() != Texture || r.Access() != ReadWrite {
		t.Errorf("recycled tags %s", r)
	}
	if !c.IsCurrent(r) || c.IsCurrent(a) {
		t.Errorf("IsCurrent mismatch for %s / %s", r, a)
	}
}

func TestHandleCacheLIFO(t *testing.T) {
	c := NewHandleCache(8)
	hs := []Handle{c.Fetch(Buffer, ReadOnly), c.Fetch(Buffer, ReadOnly), c.Fetch(Buffer, ReadOnly)}
	c.Free(hs[0])
	c.Free(hs[2])
	if got := c.Fetch(Buffer, ReadOnly).Index(); got != 2 {
		t.Errorf("first reuse index %d, want 2", got)
	}
	if got := c.Fetch(Buffer, ReadOnly).Index(); got != 0 {
		t.Errorf("second reuse index %d, want 0", got)
	}
	if got := c.Fetch(Buffer, ReadOnly).Index(); got != 3 {
		t.Errorf("fresh index %d, want 3", got)
	}
}

func TestHandleCacheCapacity(t *testing.T) {
	c := NewHandleCache(3)
	var last Handle
	for i := 0; i < 3; i++ {
		last = c.Fetch(Texture, ReadOnly)
	}
	expectAssertion(t, "exceeded capacity", func() { c.Fetch(Texture, ReadOnly) })

	c.Free(last)
	if h := c.Fetch(Texture, ReadOnly); h.Index() != last.Index() {
		t.Errorf("fetch after free got index %d, want %d", h.Index(), last.Index())
	}
}

func TestHandleCacheVersionWraps(t *testing.T) {
	c := NewHandleCache(1)
	h := c.Fetch(Buffer, ReadOnly)
	for i := 0; i < MaxVersion+1; i++ {
		c.Free(h)
		h = c.Fetch(Buffer, ReadOnly)
	}
	if h.Version() != 0 || h.Index() != 0 {
		t.Errorf("after %d recycles got %s, want version 0", MaxVersion+1, h)
	}
}

func TestHandleCacheStaleFree(t *testing.T) {
	c := NewHandleCache(2)
	h := c.Fetch(Buffer, ReadOnly)
	c.Free(h)
	expectAssertion(t, "double free", func() { c.Free(h) })

	c.Fetch(Buffer, ReadOnly)
	expectAssertion(t, "stale free", func() { c.Free(h) })
	expectAssertion(t, "invalid free", func() { c.Free(InvalidHandle) })
}
