package bridge

import (
	"testing"

	"github.com/cryguy/tsbridge/internal/registry"
)

func TestCallContextAllocRecordsForDrop(t *testing.T) {
	heap := NewHeap()
	cc := NewCallContext(heap)
	i32 := &registry.Type{Name: "i32", Size: 4, Flags: registry.Flags{Primitive: true, Integral: true, TriviallyDestructible: true}}

	ptr := cc.Alloc(i32)
	if ptr == 0 {
		t.Fatalf("expected non-zero pointer")
	}
	if !cc.DidAllocate() {
		t.Fatalf("expected DidAllocate true")
	}
	cc.Drop()
	if _, ok := heap.ReadBytes(ptr, 4); ok {
		t.Fatalf("expected block to be freed after Drop")
	}
}

func TestCallContextOverrideSlot(t *testing.T) {
	heap := NewHeap()
	cc := NewCallContext(heap)
	i32 := &registry.Type{Name: "i32", Size: 4}
	target := heap.Alloc(4)

	cc.SetNextAllocation(target)
	if !cc.HasAllocationTarget() {
		t.Fatalf("expected allocation target to be armed")
	}
	got := cc.Alloc(i32)
	if got != target {
		t.Fatalf("expected override target %d, got %d", target, got)
	}
	if cc.HasAllocationTarget() {
		t.Fatalf("expected override to be consumed")
	}
	if cc.DidAllocate() {
		t.Fatalf("expected DidAllocate false when only the override was used")
	}
}

func TestCallContextDestructorRunsOnDrop(t *testing.T) {
	heap := NewHeap()
	cc := NewCallContext(heap)
	ran := false
	handle := &registry.Type{
		Name: "Handle",
		Size: 4,
		Destructor: &registry.Function{
			Name: "~Handle",
			Call: func(self uintptr, args []uintptr) (uintptr, error) {
				ran = true
				return 0, nil
			},
		},
	}
	cc.Alloc(handle)
	cc.Drop()
	if !ran {
		t.Fatalf("expected destructor to run on Drop")
	}
}

func TestCallContextCallbackReleasedOnDrop(t *testing.T) {
	heap := NewHeap()
	cc := NewCallContext(heap)
	released := false
	cc.AddCallback(0xABCD, func() { released = true })
	cc.Drop()
	if !released {
		t.Fatalf("expected callback release to run on Drop")
	}
}
