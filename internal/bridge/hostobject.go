package bridge

import (
	"log/slog"
	"sync"

	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

type objEntry struct {
	target jsengine.Obj // nil until assigned (preemptive allocation)
}

// ObjectManager is the host object manager of spec §4.2: one instance per
// non-trivial class, owning a fixed-block pool (delegated to a Heap) and
// the hostPtr→weak-script-ref mapping that lets marshallers avoid double
// wrapping and lets the engine's GC drive native destruction.
type ObjectManager struct {
	typ    *registry.Type
	heap   *Heap
	engine jsengine.Engine
	log    *slog.Logger

	mu      sync.Mutex
	entries map[uintptr]*objEntry
}

// NewObjectManager returns a manager for typ, allocating out of heap and
// registering weak references against engine.
func NewObjectManager(typ *registry.Type, heap *Heap, engine jsengine.Engine, log *slog.Logger) *ObjectManager {
	if log == nil {
		log = slog.Default()
	}
	return &ObjectManager{
		typ:     typ,
		heap:    heap,
		engine:  engine,
		log:     log,
		entries: make(map[uintptr]*objEntry),
	}
}

// Alloc reserves a block, binding a weak reference to target with a GC
// listener that frees the block once the script collects it. Only for
// script-owned instances (script `new`, or a copy made for a caller that
// asked for one) — an externally-owned wrapper must never be registered
// here, or the script GC would run the destructor on memory the host
// still owns.
func (m *ObjectManager) Alloc(target jsengine.Obj) uintptr {
	ptr := m.heap.Alloc(m.typ.Size)
	m.mu.Lock()
	m.entries[ptr] = &objEntry{target: target}
	m.mu.Unlock()
	m.engine.MakeWeak(target, ptr, m.onCollected)
	return ptr
}

// PreemptiveAlloc reserves a block with no wrapper yet; its weak ref stays
// empty until AssignTarget runs.
func (m *ObjectManager) PreemptiveAlloc() uintptr {
	ptr := m.heap.Alloc(m.typ.Size)
	m.mu.Lock()
	m.entries[ptr] = &objEntry{}
	m.mu.Unlock()
	return ptr
}

// AssignTarget binds the weak ref of a preemptively-allocated block to
// target. Fails if ptr has no entry or already has a target.
func (m *ObjectManager) AssignTarget(ptr uintptr, target jsengine.Obj) error {
	m.mu.Lock()
	e, ok := m.entries[ptr]
	assigned := false
	if ok && e.target == nil {
		e.target = target
		assigned = true
	}
	m.mu.Unlock()
	if !ok {
		return NewTypeError(m.typ.Name, "assignTarget: no preemptive allocation at pointer")
	}
	if !assigned {
		return NewTypeError(m.typ.Name, "assignTarget: pointer already has a target assigned")
	}
	m.engine.MakeWeak(target, ptr, m.onCollected)
	return nil
}

// Free releases the block at ptr: invokes the type's destructor if any
// (warns if the type is not trivially destructible and has none), then
// returns the block to the pool. Double-free and free-of-unknown-pointer
// are logged, never escalated, per spec §4.2 failure semantics.
func (m *ObjectManager) Free(ptr uintptr) error {
	m.mu.Lock()
	_, ok := m.entries[ptr]
	if ok {
		delete(m.entries, ptr)
	}
	m.mu.Unlock()
	if !ok {
		m.log.Error("free of unmapped host pointer", "type", m.typ.Name, "ptr", ptr)
		return nil
	}
	if m.typ.Destructor != nil {
		if _, err := m.typ.Destructor.Call(ptr, nil); err != nil {
			m.log.Error("destructor failed", "type", m.typ.Name, "ptr", ptr, "err", err)
		}
	} else if !m.typ.Flags.TriviallyDestructible {
		m.log.Warn("freeing type with no destructor and not trivially destructible", "type", m.typ.Name)
	}
	if !m.heap.Free(ptr) {
		m.log.Error("double free", "type", m.typ.Name, "ptr", ptr)
	}
	return nil
}

// FreeExplicit is Free preceded by clearing the weak reference, used by the
// wrapper's destroy() method so a later GC pass never re-enters Free for
// the same pointer.
func (m *ObjectManager) FreeExplicit(ptr uintptr, target jsengine.Obj) error {
	m.engine.ClearWeak(target)
	return m.Free(ptr)
}

// GetTargetIfMapped returns the existing wrapper for ptr, if any, so
// marshallers avoid wrapping the same host pointer twice.
func (m *ObjectManager) GetTargetIfMapped(ptr uintptr) (jsengine.Obj, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ptr]
	if !ok || e.target == nil {
		return nil, false
	}
	return e.target, true
}

func (m *ObjectManager) onCollected(ptr uintptr) {
	_ = m.Free(ptr)
}
