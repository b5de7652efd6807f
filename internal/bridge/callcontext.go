package bridge

import "github.com/cryguy/tsbridge/internal/registry"

type allocation struct {
	typ *registry.Type
	ptr uintptr
}

type callbackRelease struct {
	trampoline uintptr
	release    func()
}

// CallContext is the per-call scoped arena of spec §4.1: it owns temporary
// argument storage and callback registrations for the duration of a single
// call, and is always released via Drop when the call returns (proxies use
// defer for this).
type CallContext struct {
	heap *Heap

	allocations []allocation
	callbacks   []callbackRelease

	overrideSet bool
	override    uintptr

	didAlloc bool
	errValue error
}

// NewCallContext returns an arena backed by heap.
func NewCallContext(heap *Heap) *CallContext {
	return &CallContext{heap: heap}
}

// Heap returns the arena's backing store, for marshallers that need to
// allocate auxiliary buffers (e.g. array backing storage) outside the
// single "next allocation" slot.
func (c *CallContext) Heap() *Heap { return c.heap }

// SetNextAllocation places an incoming target that the very next call to
// Alloc must return instead of carving out fresh storage.
func (c *CallContext) SetNextAllocation(ptr uintptr) {
	c.overrideSet = true
	c.override = ptr
}

// HasAllocationTarget reports whether a next-allocation override is armed.
func (c *CallContext) HasAllocationTarget() bool { return c.overrideSet }

// Alloc returns storage for t: the armed override if set (consuming it),
// otherwise a fresh zeroed block of t.Size recorded for destruction on Drop.
func (c *CallContext) Alloc(t *registry.Type) uintptr {
	return c.AllocSized(t, t.Size)
}

// AllocSized is Alloc for variable-length native storage (strings, byte
// buffers, array backing stores) whose size isn't t.Size.
func (c *CallContext) AllocSized(t *registry.Type, size uintptr) uintptr {
	if c.overrideSet {
		c.overrideSet = false
		ptr := c.override
		c.override = 0
		return ptr
	}
	ptr := c.heap.Alloc(size)
	c.allocations = append(c.allocations, allocation{typ: t, ptr: ptr})
	c.didAlloc = true
	return ptr
}

// DidAllocate reports whether Alloc performed a real allocation (as opposed
// to only ever returning an override target) during this call's lifetime.
func (c *CallContext) DidAllocate() bool { return c.didAlloc }

// AddCallback registers a reverse-trampoline for release when the call
// context drops. release is the callback registry's Release closure for
// this trampoline; CallContext itself has no knowledge of the registry.
func (c *CallContext) AddCallback(trampoline uintptr, release func()) {
	c.callbacks = append(c.callbacks, callbackRelease{trampoline: trampoline, release: release})
}

// Fail records a script-side error raised while building arguments so call
// proxies can abort dispatch instead of invoking native code on partially
// constructed arguments. The first failure sticks.
func (c *CallContext) Fail(err error) {
	if c.errValue == nil {
		c.errValue = err
	}
}

// Err returns the first error recorded via Fail, or nil.
func (c *CallContext) Err() error { return c.errValue }

// Drop releases every allocation (running destructors for non-trivially-
// destructible types) and every registered callback. Safe to call once per
// context; proxies defer it immediately after construction.
func (c *CallContext) Drop() {
	for _, a := range c.allocations {
		if a.typ.Destructor != nil {
			_, _ = a.typ.Destructor.Call(a.ptr, nil)
		}
		c.heap.Free(a.ptr)
	}
	c.allocations = nil
	for _, cb := range c.callbacks {
		if cb.release != nil {
			cb.release()
		}
	}
	c.callbacks = nil
}
