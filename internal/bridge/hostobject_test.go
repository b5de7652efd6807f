package bridge

import (
	"testing"

	"github.com/cryguy/tsbridge/internal/jsengine/fake"
	"github.com/cryguy/tsbridge/internal/registry"
)

func TestObjectManagerAllocFreeOnCollect(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	heap := NewHeap()
	destroyed := 0
	typ := &registry.Type{
		Name: "Handle",
		Size: 8,
		Destructor: &registry.Function{
			Name: "~Handle",
			Call: func(self uintptr, args []uintptr) (uintptr, error) {
				destroyed++
				return 0, nil
			},
		},
	}
	mgr := NewObjectManager(typ, heap, eng, nil)
	obj, _ := jc.NewObject()
	ptr := mgr.Alloc(obj)

	if got, ok := mgr.GetTargetIfMapped(ptr); !ok || got != obj {
		t.Fatalf("expected mapped target to be the wrapper")
	}

	eng.Collect(obj)

	if destroyed != 1 {
		t.Fatalf("expected destructor to run exactly once, ran %d times", destroyed)
	}
	if _, ok := mgr.GetTargetIfMapped(ptr); ok {
		t.Fatalf("expected entry to be gone after collection")
	}
	if _, ok := heap.ReadBytes(ptr, 8); ok {
		t.Fatalf("expected block to be returned to the pool")
	}
}

func TestObjectManagerPreemptiveAllocThenAssign(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	heap := NewHeap()
	typ := &registry.Type{Name: "Point", Size: 8, Flags: registry.Flags{TriviallyDestructible: true}}
	mgr := NewObjectManager(typ, heap, eng, nil)

	ptr := mgr.PreemptiveAlloc()
	if _, ok := mgr.GetTargetIfMapped(ptr); ok {
		t.Fatalf("expected no target before AssignTarget")
	}
	obj, _ := jc.NewObject()
	if err := mgr.AssignTarget(ptr, obj); err != nil {
		t.Fatalf("AssignTarget: %v", err)
	}
	if got, ok := mgr.GetTargetIfMapped(ptr); !ok || got != obj {
		t.Fatalf("expected target to be assigned")
	}
	if err := mgr.AssignTarget(ptr, obj); err == nil {
		t.Fatalf("expected second AssignTarget on the same pointer to fail")
	}
}

func TestObjectManagerFreeOfUnknownPointerIsLogged(t *testing.T) {
	eng := fake.New()
	heap := NewHeap()
	typ := &registry.Type{Name: "Handle", Size: 4, Flags: registry.Flags{TriviallyDestructible: true}}
	mgr := NewObjectManager(typ, heap, eng, nil)
	if err := mgr.Free(12345); err != nil {
		t.Fatalf("expected Free of unknown pointer to return nil error (logged, not escalated), got %v", err)
	}
}

func TestObjectManagerFreeExplicitPreventsDoubleFree(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	heap := NewHeap()
	destroyed := 0
	typ := &registry.Type{
		Name: "Handle",
		Size: 4,
		Destructor: &registry.Function{Call: func(self uintptr, args []uintptr) (uintptr, error) {
			destroyed++
			return 0, nil
		}},
	}
	mgr := NewObjectManager(typ, heap, eng, nil)
	obj, _ := jc.NewObject()
	ptr := mgr.Alloc(obj)

	if err := mgr.FreeExplicit(ptr, obj); err != nil {
		t.Fatalf("FreeExplicit: %v", err)
	}
	if destroyed != 1 {
		t.Fatalf("expected destructor to run once, ran %d", destroyed)
	}
	// A later GC pass must not re-invoke the destructor: ClearWeak detached
	// the weak callback before Free ran.
	eng.Collect(obj)
	if destroyed != 1 {
		t.Fatalf("expected destructor to still have run exactly once after Collect, ran %d", destroyed)
	}
}
