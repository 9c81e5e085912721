package descriptor

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func expectAssertion(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("%s: expected an assertion failure", name)
			return
		}
		if err, ok := r.(error); !ok || !errors.IsAssertionFailure(err) {
			t.Errorf("%s: unexpected panic %v", name, r)
		}
	}()
	fn()
}

func TestHandleRoundTrip(t *testing.T) {
	tests := []struct {
		index   uint32
		typ     ResourceType
		access  Access
		version uint8
		want    Handle
	}{
		{0, Buffer, ReadOnly, 0, 0},
		{1, Texture, ReadOnly, 0, 1 | 1<<23},
		{42, RWTexture, ReadWrite, 3, 42 | 2<<23 | 1<<25 | 3<<26},
		{MaxCapacity - 1, Buffer, ReadWrite, MaxVersion, Handle(MaxCapacity-1) | 1<<25 | 63<<26},
	}
	for _, tt := range tests {
		h := NewHandle(tt.index, tt.typ, tt.access, tt.version)
		if h != tt.want {
			t.Errorf("NewHandle(%d, %s, %s, %d) = %#x, want %#x", tt.index, tt.typ, tt.access, tt.version, uint32(h), uint32(tt.want))
		}
		if h.Index() != tt.index || h.Type() != tt.typ || h.Access() != tt.access || h.Version() != tt.version {
			t.Errorf("%s decoded to index=%d type=%s access=%s version=%d", h, h.Index(), h.Type(), h.Access(), h.Version())
		}
		if !h.IsValid() {
			t.Errorf("%s reported invalid", h)
		}
	}
}

func TestInvalidHandle(t *testing.T) {
	if InvalidHandle.IsValid() {
		t.Errorf("InvalidHandle reported valid")
	}
	if InvalidHandle.Type() != 3 {
		t.Errorf("InvalidHandle.Type() = %d, want 3", InvalidHandle.Type())
	}
}

func TestNewHandleRanges(t *testing.T) {
	expectAssertion(t, "index", func() { NewHandle(MaxCapacity, Buffer, ReadOnly, 0) })
	expectAssertion(t, "type", func() { NewHandle(0, ResourceType(3), ReadOnly, 0) })
	expectAssertion(t, "version", func() { NewHandle(0, Buffer, ReadOnly, 64) })
}

func TestRecycle(t *testing.T) {
	h := NewHandle(7, Buffer, ReadOnly, 5)
	r := h.Recycle(RWTexture, ReadWrite)
	if r.Index() != 7 || r.Version() != 6 || r.Type() != RWTexture || r.Access() != ReadWrite {
		t.Errorf("Recycle(%s) = %s", h, r)
	}

	wrapped := NewHandle(7, Texture, ReadOnly, MaxVersion).Recycle(Texture, ReadOnly)
	if wrapped.Version() != 0 {
		t.Errorf("version after %d = %d, want 0", MaxVersion, wrapped.Version())
	}
}
