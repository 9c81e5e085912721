package gpu

import (
	"reflect"
	"testing"
)

func TestDeletionQueueDefersToSameSlot(t *testing.T) {
	dq := NewDeletionQueue(MaxFramesInFlight)
	var ran []string

	dq.Flush(0)
	dq.Schedule(func() { ran = append(ran, "a") })
	dq.Schedule(nil)
	dq.Schedule(func() { ran = append(ran, "b") })

	dq.Flush(1)
	if len(ran) != 0 {
		t.Fatalf("closures ran on another frame's flush: %v", ran)
	}
	if dq.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", dq.Pending())
	}

	dq.Flush(0)
	if want := []string{"a", "b"}; !reflect.DeepEqual(ran, want) {
		t.Errorf("ran %v, want %v", ran, want)
	}
	if dq.Pending() != 0 {
		t.Errorf("slot not cleared, %d pending", dq.Pending())
	}

	dq.Flush(0)
	if len(ran) != 2 {
		t.Errorf("closures ran twice: %v", ran)
	}
}

func TestDeletionQueueFlushAll(t *testing.T) {
	dq := NewDeletionQueue(3)
	var ran []int
	for frame := uint32(0); frame < 3; frame++ {
		dq.Flush(frame)
		f := int(frame)
		dq.Schedule(func() { ran = append(ran, f) })
	}
	if dq.Frame() != 2 {
		t.Fatalf("Frame() = %d, want 2", dq.Frame())
	}

	dq.FlushAll()
	if want := []int{0, 1, 2}; !reflect.DeepEqual(ran, want) {
		t.Errorf("FlushAll ran %v, want %v", ran, want)
	}
	if dq.Pending() != 0 {
		t.Errorf("Pending() = %d after FlushAll", dq.Pending())
	}
}

func TestDeletionQueueScheduleDuringFlush(t *testing.T) {
	dq := NewDeletionQueue(2)
	ranInner := false
	dq.Schedule(func() {
		dq.Schedule(func() { ranInner = true })
	})
	dq.Flush(0)
	if ranInner {
		t.Fatalf("closure scheduled during flush ran in the same flush")
	}
	dq.Flush(0)
	if !ranInner {
		t.Errorf("closure scheduled during flush never ran")
	}
}
