package marshal

import (
	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// byteBufferMarshaller is the {data, size} pair of spec §4.3 "Byte buffer",
// converting to and from a script ArrayBuffer with a copy on each side.
type byteBufferMarshaller struct{}

func newByteBufferMarshaller() bridge.Marshaller { return &byteBufferMarshaller{} }

func (m *byteBufferMarshaller) CanAccept(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) bool {
	return v.Kind() == jsengine.ArrayBuffer
}

func (m *byteBufferMarshaller) ToScript(cc *bridge.CallContext, jc jsengine.Ctx, ptr uintptr, needsCopy, isHostReturn bool) (jsengine.Value, error) {
	size, ok := cc.Heap().BlockSize(ptr)
	if !ok {
		return nil, bridge.NewTypeError("ArrayBuffer", "invalid native storage for buffer read")
	}
	buf, _ := cc.Heap().ReadBytes(ptr, size)
	v, err := jc.NewArrayBuffer(buf)
	if err != nil {
		return nil, bridge.NewTypeError("ArrayBuffer", "allocating script ArrayBuffer: %v", err)
	}
	return v, nil
}

func (m *byteBufferMarshaller) FromScript(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) (uintptr, error) {
	data, ok := jc.ArrayBufferBytes(v)
	if !ok {
		return 0, bridge.NewTypeError("ArrayBuffer", "expected an ArrayBuffer value")
	}
	ptr := cc.AllocSized(registry.BufferType, uintptr(len(data)))
	if len(data) > 0 {
		cc.Heap().WriteBytes(ptr, data)
	}
	return ptr, nil
}
