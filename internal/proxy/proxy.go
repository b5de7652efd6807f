// Package proxy builds the script-callable jsengine.FunctionCallback closures
// of spec §4.5: free functions, methods, their async variants, and
// constructors with overload resolution. Every proxy owns a per-call
// bridge.CallContext so argument storage and registered callbacks are
// released deterministically when the call (or, for async, the completion)
// finishes.
package proxy

import (
	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/marshal"
	"github.com/cryguy/tsbridge/internal/registry"
	"github.com/cryguy/tsbridge/internal/workerpool"
)

func marshalArgs(cc *bridge.CallContext, jc jsengine.Ctx, fn *registry.Function, info jsengine.CallInfo) ([]uintptr, error) {
	if info.Len() != len(fn.Args) {
		return nil, bridge.NewRangeError("%s: expected %d arguments, got %d", fn.Name, len(fn.Args), info.Len())
	}
	args := make([]uintptr, len(fn.Args))
	for i, at := range fn.Args {
		td := bridge.TypeDataOf(at)
		ptr, err := td.Marshaller.FromScript(cc, jc, info.Arg(i))
		if err != nil {
			return nil, err
		}
		args[i] = ptr
	}
	return args, nil
}

// returnNeedsCopy implements the policy of spec §4.5: a direct (non-pointer)
// instance of a type with a host manager is copy-constructed into a fresh
// block rather than adopting whatever storage the native call used; a
// pointer return, or a return of any non-managed kind, is not.
func returnNeedsCopy(ret *registry.Type) bool {
	if ret == nil {
		return false
	}
	td := bridge.TypeDataOf(ret)
	return td != nil && td.Manager != nil && !ret.Flags.Pointer
}

func marshalReturn(cc *bridge.CallContext, jc jsengine.Ctx, fn *registry.Function, result uintptr) (jsengine.Value, error) {
	if fn.Return.IsVoid() {
		return jc.Undefined(), nil
	}
	retTD := bridge.TypeDataOf(fn.Return)
	if retTD == nil || retTD.Marshaller == nil {
		return nil, bridge.NewTypeError(fn.Return.Name, "no marshaller installed for return type")
	}
	return retTD.Marshaller.ToScript(cc, jc, result, returnNeedsCopy(fn.Return), true)
}

func rejectionValue(jc jsengine.Ctx, err error) jsengine.Value {
	return jc.NewString(err.Error())
}

// resolveSelf reads the `this` pointer out of a method-call wrapper, upcast
// to owner's representation, rejecting a missing instance or a use of a
// destroyed object (spec §4.2's tombstone).
func resolveSelf(self jsengine.Obj, owner *registry.Type) (uintptr, error) {
	if self == nil || self.InternalFieldCount() < 3 {
		return 0, bridge.NewTypeError(owner.Name, "method called without a bound instance")
	}
	ptr := self.GetInternalField(bridge.FieldHostPtr)
	if ptr == bridge.Tombstone {
		return 0, bridge.NewTypeError(owner.Name, "use of a destroyed object")
	}
	declared := bridge.TypeFromHandle(self.GetInternalField(bridge.FieldTypeDesc))
	off, ok := bridge.UpcastOffset(declared, owner)
	if !ok {
		return 0, bridge.NewTypeError(owner.Name, "this is not an instance of the expected type")
	}
	return ptr + uintptr(off), nil
}

func dispatch(cc *bridge.CallContext, jc jsengine.Ctx, info jsengine.CallInfo, fn *registry.Function, self uintptr) (jsengine.Value, error) {
	args, err := marshalArgs(cc, jc, fn, info)
	if err != nil {
		return nil, err
	}
	result, err := fn.Call(self, args)
	if err != nil {
		return nil, err
	}
	return marshalReturn(cc, jc, fn, result)
}

// NewFreeFunction builds the sync call proxy for a free function.
func NewFreeFunction(fn *registry.Function, heap *bridge.Heap) jsengine.FunctionCallback {
	return func(info jsengine.CallInfo) (jsengine.Value, error) {
		cc := bridge.NewCallContext(heap)
		defer cc.Drop()
		return dispatch(cc, info.Context(), info, fn, 0)
	}
}

// NewMethod builds the sync call proxy for a method declared on owner.
func NewMethod(fn *registry.Function, heap *bridge.Heap, owner *registry.Type) jsengine.FunctionCallback {
	return func(info jsengine.CallInfo) (jsengine.Value, error) {
		self, err := resolveSelf(info.This(), owner)
		if err != nil {
			return nil, err
		}
		cc := bridge.NewCallContext(heap)
		defer cc.Drop()
		return dispatch(cc, info.Context(), info, fn, self)
	}
}

// NewFreeFunctionAsync builds the async call proxy for a free function:
// argument marshalling happens synchronously (script values aren't safe to
// touch off the host thread), fn.Call runs on a pool worker, and the
// returned promise settles on the next Drain.
func NewFreeFunctionAsync(fn *registry.Function, heap *bridge.Heap, pool *workerpool.Pool) jsengine.FunctionCallback {
	return func(info jsengine.CallInfo) (jsengine.Value, error) {
		jc := info.Context()
		cc := bridge.NewCallContext(heap)
		args, err := marshalArgs(cc, jc, fn, info)
		if err != nil {
			cc.Drop()
			return nil, err
		}
		resolver, err := jc.NewPromiseResolver()
		if err != nil {
			cc.Drop()
			return nil, err
		}
		pool.Submit(&workerpool.Job{
			Run: func() (uintptr, error) { return fn.Call(0, args) },
			AfterComplete: func(result uintptr, callErr error) {
				defer cc.Drop()
				if callErr != nil {
					_ = resolver.Reject(rejectionValue(jc, callErr))
					return
				}
				v, err := marshalReturn(cc, jc, fn, result)
				if err != nil {
					_ = resolver.Reject(rejectionValue(jc, err))
					return
				}
				_ = resolver.Resolve(v)
			},
		})
		return resolver.Promise(), nil
	}
}

// NewMethodAsync is NewFreeFunctionAsync for a method: self is resolved
// synchronously, before the job is ever submitted to a worker.
func NewMethodAsync(fn *registry.Function, heap *bridge.Heap, owner *registry.Type, pool *workerpool.Pool) jsengine.FunctionCallback {
	return func(info jsengine.CallInfo) (jsengine.Value, error) {
		self, err := resolveSelf(info.This(), owner)
		if err != nil {
			return nil, err
		}
		jc := info.Context()
		cc := bridge.NewCallContext(heap)
		args, err := marshalArgs(cc, jc, fn, info)
		if err != nil {
			cc.Drop()
			return nil, err
		}
		resolver, err := jc.NewPromiseResolver()
		if err != nil {
			cc.Drop()
			return nil, err
		}
		pool.Submit(&workerpool.Job{
			Run: func() (uintptr, error) { return fn.Call(self, args) },
			AfterComplete: func(result uintptr, callErr error) {
				defer cc.Drop()
				if callErr != nil {
					_ = resolver.Reject(rejectionValue(jc, callErr))
					return
				}
				v, err := marshalReturn(cc, jc, fn, result)
				if err != nil {
					_ = resolver.Reject(rejectionValue(jc, err))
					return
				}
				_ = resolver.Resolve(v)
			},
		})
		return resolver.Promise(), nil
	}
}

// ResolveOverload implements spec §4.5 point 4: the unique constructor whose
// arity matches info and whose every argument marshaller's CanAccept admits
// the corresponding script argument. Zero or more than one match is a
// bridge.OverloadError.
func ResolveOverload(cc *bridge.CallContext, jc jsengine.Ctx, candidates []*registry.Function, info jsengine.CallInfo, typeName string) (*registry.Function, error) {
	var match *registry.Function
	count := 0
	for _, ctor := range candidates {
		if len(ctor.Args) != info.Len() {
			continue
		}
		ok := true
		for i, at := range ctor.Args {
			td := bridge.TypeDataOf(at)
			if td == nil || td.Marshaller == nil || !td.Marshaller.CanAccept(cc, jc, info.Arg(i)) {
				ok = false
				break
			}
		}
		if ok {
			match = ctor
			count++
		}
	}
	if count != 1 {
		return nil, bridge.NewOverloadError(typeName, count)
	}
	return match, nil
}

// NewConstructor builds the call proxy exposed as a class's construct
// function. It resolves the overload, preemptively allocates a block from
// t's manager, invokes the chosen constructor in place, then wraps the
// result and binds the wrapper to that block.
func NewConstructor(t *registry.Type, heap *bridge.Heap) jsengine.FunctionCallback {
	return func(info jsengine.CallInfo) (jsengine.Value, error) {
		jc := info.Context()
		cc := bridge.NewCallContext(heap)
		defer cc.Drop()

		ctor, err := ResolveOverload(cc, jc, t.Constructors, info, t.Name)
		if err != nil {
			return nil, err
		}
		td := bridge.TypeDataOf(t)
		if td == nil || td.Manager == nil {
			return nil, bridge.NewTypeError(t.Name, "no host object manager installed")
		}
		args, err := marshalArgs(cc, jc, ctor, info)
		if err != nil {
			return nil, err
		}
		ptr := td.Manager.PreemptiveAlloc()
		if _, err := ctor.Call(ptr, args); err != nil {
			return nil, bridge.NewTypeError(t.Name, "constructor failed: %v", err)
		}
		wrapper, err := marshal.NewWrapper(t, jc, ptr, false)
		if err != nil {
			return nil, err
		}
		if err := td.Manager.AssignTarget(ptr, wrapper); err != nil {
			return nil, bridge.NewTypeError(t.Name, "assigning wrapper: %v", err)
		}
		return wrapper, nil
	}
}
