package marshal

import (
	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// objectMarshaller implements spec §4.3 "Non-trivial object": identity
// preservation through the manager's pointer map, in-place wrapping for
// externally-owned results, and copy-on-return when the caller asked for
// a copy of a host-owned return value.
type objectMarshaller struct {
	typ *registry.Type
	mgr *bridge.ObjectManager
}

func newObjectMarshaller(t *registry.Type, mgr *bridge.ObjectManager) bridge.Marshaller {
	return &objectMarshaller{typ: t, mgr: mgr}
}

func (m *objectMarshaller) CanAccept(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) bool {
	obj, ok := v.(jsengine.Obj)
	if !ok || obj.InternalFieldCount() < 3 {
		return false
	}
	ptr := obj.GetInternalField(bridge.FieldHostPtr)
	if ptr == bridge.Tombstone {
		return false
	}
	return m.findUpcastOffset(obj) != nil
}

// findUpcastOffset walks the wrapper's declared type's base list looking
// for m.typ, returning the byte offset to apply, or nil if m.typ isn't the
// wrapper's own type or one of its bases.
func (m *objectMarshaller) findUpcastOffset(obj jsengine.Obj) *int64 {
	declared := bridge.TypeFromHandle(obj.GetInternalField(bridge.FieldTypeDesc))
	off, ok := bridge.UpcastOffset(declared, m.typ)
	if !ok {
		return nil
	}
	return &off
}

func (m *objectMarshaller) ToScript(cc *bridge.CallContext, jc jsengine.Ctx, ptr uintptr, needsCopy, isHostReturn bool) (jsengine.Value, error) {
	if existing, ok := m.mgr.GetTargetIfMapped(ptr); ok {
		return existing, nil
	}
	if needsCopy && isHostReturn {
		if ctor := m.copyConstructor(); ctor != nil {
			newPtr := m.mgr.PreemptiveAlloc()
			if _, err := ctor.Call(newPtr, []uintptr{ptr}); err != nil {
				return nil, bridge.NewTypeError(m.typ.Name, "copy constructor failed: %v", err)
			}
			wrapper, err := m.newWrapper(jc, newPtr, false)
			if err != nil {
				return nil, err
			}
			if err := m.mgr.AssignTarget(newPtr, wrapper); err != nil {
				return nil, bridge.NewTypeError(m.typ.Name, "assigning wrapper: %v", err)
			}
			return wrapper, nil
		}
	}
	// In-place, externally-owned wrap: the host keeps owning ptr, so this
	// wrapper gets no entry in the manager's map and no GC listener —
	// mirroring wrapHostObject exactly. Tracking it here would let the
	// script GC call Free/the destructor on memory the host never handed
	// off, a use-after-free for whoever the host lent it to. Each call
	// over the same ptr therefore builds a fresh wrapper rather than
	// returning a prior instance; only manager-owned pointers (Alloc /
	// PreemptiveAlloc+AssignTarget) get identity preservation.
	return m.newWrapper(jc, ptr, true)
}

func (m *objectMarshaller) copyConstructor() *registry.Function {
	for _, ctor := range m.typ.Constructors {
		if len(ctor.Args) == 1 && ctor.Args[0].Flags.Pointer && ctor.Args[0].PointerElem == m.typ {
			return ctor
		}
	}
	return nil
}

func (m *objectMarshaller) newWrapper(jc jsengine.Ctx, ptr uintptr, externallyOwned bool) (jsengine.Obj, error) {
	return NewWrapper(m.typ, jc, ptr, externallyOwned)
}

// NewWrapper instantiates t's script-side class template and binds its
// internal fields (host pointer, type descriptor, externally-owned flag) to
// ptr. Exported for the constructor call proxy, which needs to build a
// wrapper for a freshly-constructed instance without going through ToScript.
func NewWrapper(t *registry.Type, jc jsengine.Ctx, ptr uintptr, externallyOwned bool) (jsengine.Obj, error) {
	td := bridge.TypeDataOf(t)
	if td == nil || td.Template == nil {
		return nil, bridge.NewTypeError(t.Name, "no script-side class template installed")
	}
	obj, err := td.Template.NewInstance(jc)
	if err != nil {
		return nil, bridge.NewTypeError(t.Name, "instantiating wrapper: %v", err)
	}
	obj.SetInternalField(bridge.FieldHostPtr, ptr)
	obj.SetInternalField(bridge.FieldTypeDesc, bridge.TypeHandle(t))
	ext := uintptr(0)
	if externallyOwned {
		ext = 1
	}
	obj.SetInternalField(bridge.FieldExternalOwn, ext)
	return obj, nil
}

func (m *objectMarshaller) FromScript(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) (uintptr, error) {
	obj, ok := v.(jsengine.Obj)
	if !ok || obj.InternalFieldCount() < 3 {
		return 0, bridge.NewTypeError(m.typ.Name, "expected a wrapped object")
	}
	ptr := obj.GetInternalField(bridge.FieldHostPtr)
	if ptr == bridge.Tombstone {
		return 0, bridge.NewTypeError(m.typ.Name, "use of a destroyed object")
	}
	off := m.findUpcastOffset(obj)
	if off == nil {
		return 0, bridge.NewTypeError(m.typ.Name, "wrapper's type descriptor does not match or derive from the expected type")
	}
	ptr += uintptr(*off)
	if cc.HasAllocationTarget() {
		ctor := m.copyConstructor()
		target := cc.Alloc(m.typ) // consumes the override
		if ctor != nil {
			if _, err := ctor.Call(target, []uintptr{ptr}); err != nil {
				return 0, bridge.NewTypeError(m.typ.Name, "copy constructor failed: %v", err)
			}
		} else {
			buf, ok := cc.Heap().ReadBytes(ptr, m.typ.Size)
			if ok {
				cc.Heap().WriteBytes(target, buf)
			}
		}
		return target, nil
	}
	return ptr, nil
}
