package marshal

import (
	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// arrayMarshaller converts a host array of a fixed element type. The host
// side carries no separate length field: the array's element count is
// derived from the backing block's byte size divided by the element
// stride, so every array allocation (FromScript, or whatever native code
// produced the pointer) must size its block to a whole number of elements.
type arrayMarshaller struct {
	typ      *registry.Type
	elemType *registry.Type
	elem     *bridge.TypeData
}

func newArrayMarshaller(t *registry.Type, elemType *registry.Type, elem *bridge.TypeData) bridge.Marshaller {
	return &arrayMarshaller{typ: t, elemType: elemType, elem: elem}
}

func (m *arrayMarshaller) CanAccept(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) bool {
	if v.Kind() != jsengine.Array {
		return false
	}
	arr, ok := v.(jsengine.Arr)
	if !ok {
		return false
	}
	for i := 0; i < arr.Len(); i++ {
		ev, err := arr.GetIndex(i)
		if err != nil || !m.elem.Marshaller.CanAccept(cc, jc, ev) {
			return false
		}
	}
	return true
}

func (m *arrayMarshaller) ToScript(cc *bridge.CallContext, jc jsengine.Ctx, ptr uintptr, needsCopy, isHostReturn bool) (jsengine.Value, error) {
	size, ok := cc.Heap().BlockSize(ptr)
	if !ok {
		return nil, bridge.NewTypeError(m.typ.Name, "invalid native storage for array read")
	}
	stride := m.elemType.Size
	n := int(size / stride)
	out, err := jc.NewArray(n)
	if err != nil {
		return nil, bridge.NewTypeError(m.typ.Name, "allocating script array: %v", err)
	}
	for i := 0; i < n; i++ {
		ev, err := m.elem.Marshaller.ToScript(cc, jc, ptr+uintptr(i)*stride, false, isHostReturn)
		if err != nil {
			return nil, err
		}
		if err := out.SetIndex(i, ev); err != nil {
			return nil, bridge.NewTypeError(m.typ.Name, "setting index %d: %v", i, err)
		}
	}
	return out, nil
}

func (m *arrayMarshaller) FromScript(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) (uintptr, error) {
	arr, ok := v.(jsengine.Arr)
	if !ok {
		return 0, bridge.NewTypeError(m.typ.Name, "expected an array")
	}
	stride := m.elemType.Size
	n := arr.Len()
	base := cc.AllocSized(m.typ, uintptr(n)*stride)
	for i := 0; i < n; i++ {
		ev, err := arr.GetIndex(i)
		if err != nil {
			return 0, bridge.NewTypeError(m.typ.Name, "reading index %d: %v", i, err)
		}
		cc.SetNextAllocation(base + uintptr(i)*stride)
		if _, err := m.elem.Marshaller.FromScript(cc, jc, ev); err != nil {
			return 0, err
		}
	}
	return base, nil
}
