// Package callback implements the reverse-trampoline registry of spec
// §4.4: a script function wrapped in a refcounted record, paired with a
// "trampoline" — here a process-unique integer handle rather than a real
// libffi-generated closure, the same technique github.com/tommie/v8go uses
// internally to bridge cgo function pointers back to Go closures
// (Isolate.registerCallback / getCallback). See DESIGN.md for why
// generating real executable machine code was rejected.
package callback

import (
	"fmt"
	"sync"

	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// Record is one live reverse callback: a script function plus the
// signature its trampoline was prepared for.
type Record struct {
	Signature *registry.Function
	Fn        jsengine.Value
	Ctx       jsengine.Ctx
	refCount  int
}

// Registry keys records by trampoline address (here, a monotonically
// increasing handle standing in for one).
type Registry struct {
	mu      sync.Mutex
	records map[uintptr]*Record
	next    uintptr
}

// New returns an empty callback registry.
func New() *Registry {
	return &Registry{records: make(map[uintptr]*Record), next: 1}
}

// Create allocates a trampoline for scriptFn under sig, with an initial
// refcount of 1. Fails only if sig is nil.
func (r *Registry) Create(ctx jsengine.Ctx, sig *registry.Function, scriptFn jsengine.Value) (uintptr, error) {
	if sig == nil {
		return 0, fmt.Errorf("callback: cannot create a trampoline with no signature")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	handle := r.next
	r.next++
	r.records[handle] = &Record{Signature: sig, Fn: scriptFn, Ctx: ctx, refCount: 1}
	return handle, nil
}

// AddRef increments the refcount of an existing record. No-op if unknown.
func (r *Registry) AddRef(trampoline uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[trampoline]; ok {
		rec.refCount++
	}
}

// Release decrements the refcount; at zero the record (and its simulated
// closure memory) is freed. Safe to call on an unknown handle (no-op).
func (r *Registry) Release(trampoline uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[trampoline]
	if !ok {
		return
	}
	rec.refCount--
	if rec.refCount <= 0 {
		delete(r.records, trampoline)
	}
}

// RefCount reports the current refcount of trampoline, or 0 if unknown —
// used by tests to pin property 11 (spec §8).
func (r *Registry) RefCount(trampoline uintptr) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[trampoline]; ok {
		return rec.refCount
	}
	return 0
}

// DestroyAll releases every live record, for process shutdown.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[uintptr]*Record)
}

func (r *Registry) lookup(trampoline uintptr) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[trampoline]
	return rec, ok
}

// Invoke is the generic trampoline handler of spec §4.4: given raw
// argument pointers it runs each argument marshaller's ToScript, calls the
// script function, and — for a non-void signature — runs FromScript
// directly into returnSlot via SetNextAllocation. It throws a host error
// when the script callback throws, when a conversion fails, or when the
// script returns nothing for a non-void signature.
func (r *Registry) Invoke(cc *bridge.CallContext, jc jsengine.Ctx, trampoline uintptr, argPtrs []uintptr, returnSlot uintptr) error {
	rec, ok := r.lookup(trampoline)
	if !ok {
		return fmt.Errorf("callback: invoke on unknown trampoline %d", trampoline)
	}
	if len(argPtrs) != len(rec.Signature.Args) {
		return bridge.NewRangeError("callback %q: expected %d arguments, got %d", rec.Signature.Name, len(rec.Signature.Args), len(argPtrs))
	}
	scriptArgs := make([]jsengine.Value, len(argPtrs))
	for i, argType := range rec.Signature.Args {
		td := bridge.TypeDataOf(argType)
		if td == nil || td.Marshaller == nil {
			return bridge.NewTypeError(argType.Name, "no marshaller installed for callback argument %d", i)
		}
		v, err := td.Marshaller.ToScript(cc, jc, argPtrs[i], false, false)
		if err != nil {
			return err
		}
		scriptArgs[i] = v
	}
	result, err := jc.CallFunction(rec.Fn, jc.Undefined(), scriptArgs)
	if err != nil {
		return fmt.Errorf("script callback %q threw: %w", rec.Signature.Name, err)
	}
	if rec.Signature.Return.IsVoid() {
		return nil
	}
	if result == nil || result.IsNullOrUndefined() {
		return bridge.NewTypeError(rec.Signature.Return.Name, "callback %q: script returned nothing for a non-void signature", rec.Signature.Name)
	}
	retTD := bridge.TypeDataOf(rec.Signature.Return)
	if retTD == nil || retTD.Marshaller == nil {
		return bridge.NewTypeError(rec.Signature.Return.Name, "no marshaller installed for callback return type")
	}
	cc.SetNextAllocation(returnSlot)
	_, err = retTD.Marshaller.FromScript(cc, jc, result)
	return err
}
