package marshal

import (
	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// stringMarshaller stores the host string as a raw UTF-8 byte block whose
// size is the string's own length, per spec §4.3 "String".
type stringMarshaller struct{}

func newStringMarshaller() bridge.Marshaller { return &stringMarshaller{} }

func (m *stringMarshaller) CanAccept(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) bool {
	return v.Kind() == jsengine.String
}

func (m *stringMarshaller) ToScript(cc *bridge.CallContext, jc jsengine.Ctx, ptr uintptr, needsCopy, isHostReturn bool) (jsengine.Value, error) {
	size, ok := cc.Heap().BlockSize(ptr)
	if !ok {
		return nil, bridge.NewTypeError("string", "invalid native storage for string read")
	}
	buf, _ := cc.Heap().ReadBytes(ptr, size)
	return jc.NewString(string(buf)), nil
}

func (m *stringMarshaller) FromScript(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) (uintptr, error) {
	s := v.String()
	ptr := cc.AllocSized(registry.StringType, uintptr(len(s)))
	if len(s) > 0 {
		cc.Heap().WriteBytes(ptr, []byte(s))
	}
	return ptr, nil
}
