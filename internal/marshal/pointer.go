package marshal

import (
	"encoding/binary"

	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// pointerMarshaller never forces a copy on ToScript: callers that return
// pointers imply the pointee outlives the call (spec §4.3 "Pointer", and
// the open question in §9 about pointer-return lifetime).
type pointerMarshaller struct {
	typ  *registry.Type
	elem *bridge.TypeData
}

func newPointerMarshaller(t *registry.Type, elem *bridge.TypeData) bridge.Marshaller {
	return &pointerMarshaller{typ: t, elem: elem}
}

func (m *pointerMarshaller) CanAccept(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) bool {
	if v.IsNullOrUndefined() {
		return true
	}
	return m.elem.Marshaller.CanAccept(cc, jc, v)
}

func (m *pointerMarshaller) ToScript(cc *bridge.CallContext, jc jsengine.Ctx, ptr uintptr, needsCopy, isHostReturn bool) (jsengine.Value, error) {
	buf, ok := cc.Heap().ReadBytes(ptr, 8)
	if !ok {
		return nil, bridge.NewTypeError(m.typ.Name, "invalid native storage for pointer read")
	}
	addr := uintptr(binary.LittleEndian.Uint64(buf))
	if addr == 0 {
		return jc.Null(), nil
	}
	return m.elem.Marshaller.ToScript(cc, jc, addr, false, isHostReturn)
}

func (m *pointerMarshaller) FromScript(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) (uintptr, error) {
	ptr := cc.Alloc(m.typ)
	if v.IsNullOrUndefined() {
		cc.Heap().Zero(ptr, 8)
		return ptr, nil
	}
	addr, err := m.elem.Marshaller.FromScript(cc, jc, v)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(addr))
	cc.Heap().WriteBytes(ptr, buf)
	return ptr, nil
}
