// Package prototype implements the object prototype builder of spec §4.6:
// given a non-trivial class's type descriptor, it builds the script-side
// class template with its three hidden wrapper slots, instance/static
// field accessors, instance/static methods, and a destroy() method.
package prototype

import (
	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/marshal"
	"github.com/cryguy/tsbridge/internal/proxy"
	"github.com/cryguy/tsbridge/internal/registry"
	"github.com/cryguy/tsbridge/internal/workerpool"
)

// Env bundles the collaborators a prototype needs at build time.
type Env struct {
	Engine jsengine.Engine
	Heap   *bridge.Heap
	Pool   *workerpool.Pool
}

// fastWidth reports whether p's field type qualifies for the direct-memory
// accessor fast path of spec §4.6: an integer or float of width 1/2/4/8.
// This is the one place outside the marshaller table the bridge is allowed
// to branch on a type's kind (spec §9).
func fastWidth(t *registry.Type) bool {
	if t == nil || !t.Flags.Primitive {
		return false
	}
	switch t.Size {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

// Class is the pair of templates a non-trivial type builds: Instance is
// the per-object wrapper shape installed as td.Template (what
// marshal.NewWrapper and the constructor proxy instantiate per object);
// Static is a second template, instantiated exactly once at commit time,
// carrying the class's static fields/methods plus a "new" method wrapping
// the constructor proxy — the jsengine contract's Value has no settable
// properties of its own, so a callable-with-static-members is modelled as
// a plain static object the way a namespace module is, rather than as a
// genuine constructor function script code can invoke with `new`.
type Class struct {
	Instance jsengine.ObjTemplate
	Static   jsengine.ObjTemplate
}

// Build constructs the script-side class template pair for t and installs
// Instance (plus t's host object manager, created alongside its
// marshaller) onto t's bridge user data. t must already have gone through
// marshal.Install so td.Manager is non-nil.
func Build(t *registry.Type, env Env) (*Class, error) {
	td := bridge.TypeDataOf(t)
	if td == nil || td.Manager == nil {
		return nil, bridge.NewTypeError(t.Name, "prototype: type has no host object manager, not a non-trivial class")
	}
	inst, err := env.Engine.NewObjTemplate()
	if err != nil {
		return nil, bridge.NewTypeError(t.Name, "allocating instance template: %v", err)
	}
	inst.SetInternalFieldCount(3)

	static, err := env.Engine.NewObjTemplate()
	if err != nil {
		return nil, bridge.NewTypeError(t.Name, "allocating static template: %v", err)
	}
	static.SetMethod("new", proxy.NewConstructor(t, env.Heap))

	for _, p := range t.Properties {
		switch p.Kind {
		case registry.PropField:
			installInstanceField(inst, p, env)
		case registry.PropStaticField:
			installStaticField(static, p, env)
		case registry.PropMethod:
			installInstanceMethod(inst, t, p, env)
		case registry.PropStaticMethod:
			installStaticMethod(static, p, env)
		case registry.PropPseudo:
			// Pseudo-methods carry documentation/declaration metadata only;
			// nothing is installed on the runtime template for them.
		}
	}
	installDestroy(inst, t, td)

	td.Template = inst
	return &Class{Instance: inst, Static: static}, nil
}

func installInstanceField(tmpl jsengine.ObjTemplate, p *registry.Property, env Env) {
	var get, set jsengine.FunctionCallback

	if fastWidth(p.Type) {
		width := p.Type.Size
		unsigned := p.Type.Flags.Unsigned
		float := p.Type.Flags.FloatingPoint
		get = func(info jsengine.CallInfo) (jsengine.Value, error) {
			jc := info.Context()
			ptr, err := selfPtr(info)
			if err != nil {
				return nil, err
			}
			buf, ok := env.Heap.ReadBytes(ptr+uintptr(p.Offset), width)
			if !ok {
				return nil, jc.ThrowTypeError("invalid native storage for field " + p.Name)
			}
			return jc.NewNumber(marshal.DecodeNumber(buf, unsigned, float)), nil
		}
		if p.Writable {
			set = func(info jsengine.CallInfo) (jsengine.Value, error) {
				jc := info.Context()
				ptr, err := selfPtr(info)
				if err != nil {
					return nil, err
				}
				buf := marshal.EncodeNumber(info.Arg(0).Float64(), width, unsigned, float)
				env.Heap.WriteBytes(ptr+uintptr(p.Offset), buf)
				return jc.Undefined(), nil
			}
		}
	} else {
		get = func(info jsengine.CallInfo) (jsengine.Value, error) {
			jc := info.Context()
			ptr, err := selfPtr(info)
			if err != nil {
				return nil, err
			}
			td := bridge.TypeDataOf(p.Type)
			if td == nil || td.Marshaller == nil {
				return nil, jc.ThrowTypeError("no marshaller installed for field " + p.Name)
			}
			cc := bridge.NewCallContext(env.Heap)
			defer cc.Drop()
			return td.Marshaller.ToScript(cc, jc, ptr+uintptr(p.Offset), false, false)
		}
		if p.Writable {
			set = func(info jsengine.CallInfo) (jsengine.Value, error) {
				jc := info.Context()
				ptr, err := selfPtr(info)
				if err != nil {
					return nil, err
				}
				td := bridge.TypeDataOf(p.Type)
				if td == nil || td.Marshaller == nil {
					return nil, jc.ThrowTypeError("no marshaller installed for field " + p.Name)
				}
				cc := bridge.NewCallContext(env.Heap)
				defer cc.Drop()
				cc.SetNextAllocation(ptr + uintptr(p.Offset))
				_, err = td.Marshaller.FromScript(cc, jc, info.Arg(0))
				if err != nil {
					return nil, err
				}
				return jc.Undefined(), nil
			}
		}
	}
	tmpl.SetAccessor(p.Name, get, set)
}

func installStaticField(tmpl jsengine.ObjTemplate, p *registry.Property, env Env) {
	var get, set jsengine.FunctionCallback

	if fastWidth(p.Type) {
		width := p.Type.Size
		unsigned := p.Type.Flags.Unsigned
		float := p.Type.Flags.FloatingPoint
		get = func(info jsengine.CallInfo) (jsengine.Value, error) {
			jc := info.Context()
			buf, ok := env.Heap.ReadBytes(p.Addr, width)
			if !ok {
				return nil, jc.ThrowTypeError("invalid native storage for static field " + p.Name)
			}
			return jc.NewNumber(marshal.DecodeNumber(buf, unsigned, float)), nil
		}
		if p.Writable {
			set = func(info jsengine.CallInfo) (jsengine.Value, error) {
				jc := info.Context()
				env.Heap.WriteBytes(p.Addr, marshal.EncodeNumber(info.Arg(0).Float64(), width, unsigned, float))
				return jc.Undefined(), nil
			}
		}
	} else {
		get = func(info jsengine.CallInfo) (jsengine.Value, error) {
			jc := info.Context()
			td := bridge.TypeDataOf(p.Type)
			if td == nil || td.Marshaller == nil {
				return nil, jc.ThrowTypeError("no marshaller installed for static field " + p.Name)
			}
			cc := bridge.NewCallContext(env.Heap)
			defer cc.Drop()
			return td.Marshaller.ToScript(cc, jc, p.Addr, false, false)
		}
		if p.Writable {
			set = func(info jsengine.CallInfo) (jsengine.Value, error) {
				jc := info.Context()
				td := bridge.TypeDataOf(p.Type)
				if td == nil || td.Marshaller == nil {
					return nil, jc.ThrowTypeError("no marshaller installed for static field " + p.Name)
				}
				cc := bridge.NewCallContext(env.Heap)
				defer cc.Drop()
				cc.SetNextAllocation(p.Addr)
				if _, err := td.Marshaller.FromScript(cc, jc, info.Arg(0)); err != nil {
					return nil, err
				}
				return jc.Undefined(), nil
			}
		}
	}
	tmpl.SetAccessor(p.Name, get, set)
}

func installInstanceMethod(tmpl jsengine.ObjTemplate, owner *registry.Type, p *registry.Property, env Env) {
	var cb jsengine.FunctionCallback
	if p.Async {
		cb = proxy.NewMethodAsync(p.Func, env.Heap, owner, env.Pool)
	} else {
		cb = proxy.NewMethod(p.Func, env.Heap, owner)
	}
	tmpl.SetMethod(p.Name, cb)
}

func installStaticMethod(tmpl jsengine.ObjTemplate, p *registry.Property, env Env) {
	var cb jsengine.FunctionCallback
	if p.Async {
		cb = proxy.NewFreeFunctionAsync(p.Func, env.Heap, env.Pool)
	} else {
		cb = proxy.NewFreeFunction(p.Func, env.Heap)
	}
	tmpl.SetMethod(p.Name, cb)
}

// installDestroy installs the destroy() method of spec §4.2/§4.6: tombstone
// the wrapper's hostPtr slot, run the destructor if any, return the block
// to the manager. Externally-owned wrappers reject it.
func installDestroy(tmpl jsengine.ObjTemplate, t *registry.Type, td *bridge.TypeData) {
	tmpl.SetMethod("destroy", func(info jsengine.CallInfo) (jsengine.Value, error) {
		jc := info.Context()
		self := info.This()
		if self == nil || self.InternalFieldCount() < 3 {
			return nil, jc.ThrowTypeError(t.Name + ": destroy() called without a bound instance")
		}
		ptr := self.GetInternalField(bridge.FieldHostPtr)
		if ptr == bridge.Tombstone {
			return nil, jc.ThrowTypeError(t.Name + ": object already destroyed")
		}
		if self.GetInternalField(bridge.FieldExternalOwn) != 0 {
			return nil, jc.ThrowTypeError(t.Name + ": cannot destroy an externally-owned object")
		}
		self.SetInternalField(bridge.FieldHostPtr, bridge.Tombstone)
		if err := td.Manager.FreeExplicit(ptr, self); err != nil {
			return nil, err
		}
		return jc.Undefined(), nil
	})
}

// selfPtr reads the bound instance's host pointer, rejecting a missing
// binding or a use-after-destroy the way call proxies do.
func selfPtr(info jsengine.CallInfo) (uintptr, error) {
	self := info.This()
	if self == nil || self.InternalFieldCount() < 3 {
		return 0, bridge.NewTypeError("", "field access without a bound instance")
	}
	ptr := self.GetInternalField(bridge.FieldHostPtr)
	if ptr == bridge.Tombstone {
		declared := bridge.TypeFromHandle(self.GetInternalField(bridge.FieldTypeDesc))
		name := ""
		if declared != nil {
			name = declared.Name
		}
		return 0, bridge.NewTypeError(name, "use of a destroyed object")
	}
	return ptr, nil
}
