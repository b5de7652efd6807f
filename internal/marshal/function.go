package marshal

import (
	"encoding/binary"
	"sync"

	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/callback"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

var (
	fnHandleMu   sync.Mutex
	fnHandleOf   = map[*registry.Function]uintptr{}
	fnOf         = map[uintptr]*registry.Function{}
	nextFnHandle = uintptr(1)
)

func fnHandle(fn *registry.Function) uintptr {
	fnHandleMu.Lock()
	defer fnHandleMu.Unlock()
	if h, ok := fnHandleOf[fn]; ok {
		return h
	}
	h := nextFnHandle
	nextFnHandle++
	fnHandleOf[fn] = h
	fnOf[h] = fn
	return h
}

func fnFromHandle(h uintptr) *registry.Function {
	fnHandleMu.Lock()
	defer fnHandleMu.Unlock()
	return fnOf[h]
}

// functionMarshaller is spec §4.3 "Function/callback": ToScript exposes a
// native function pointer as a callable script value; FromScript registers
// a script function with the callback registry and hands back a trampoline
// handle.
type functionMarshaller struct {
	typ *registry.Type
	reg *callback.Registry
}

func newFunctionMarshaller(t *registry.Type, reg *callback.Registry) bridge.Marshaller {
	return &functionMarshaller{typ: t, reg: reg}
}

func (m *functionMarshaller) CanAccept(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) bool {
	return v.Kind() == jsengine.Function
}

func (m *functionMarshaller) ToScript(cc *bridge.CallContext, jc jsengine.Ctx, ptr uintptr, needsCopy, isHostReturn bool) (jsengine.Value, error) {
	buf, ok := cc.Heap().ReadBytes(ptr, 8)
	if !ok {
		return nil, bridge.NewTypeError(m.typ.Name, "invalid native storage for function pointer read")
	}
	handle := uintptr(binary.LittleEndian.Uint64(buf))
	fn := fnFromHandle(handle)
	if fn == nil {
		return jc.Null(), nil
	}
	return jc.NewFunction(fn.Name, func(info jsengine.CallInfo) (jsengine.Value, error) {
		return invokeNative(cc, info, fn)
	})
}

func invokeNative(cc *bridge.CallContext, info jsengine.CallInfo, fn *registry.Function) (jsengine.Value, error) {
	jc := info.Context()
	if info.Len() != len(fn.Args) {
		return nil, bridge.NewRangeError("%s: expected %d arguments, got %d", fn.Name, len(fn.Args), info.Len())
	}
	argPtrs := make([]uintptr, len(fn.Args))
	for i, argType := range fn.Args {
		td := bridge.TypeDataOf(argType)
		ptr, err := td.Marshaller.FromScript(cc, jc, info.Arg(i))
		if err != nil {
			return nil, err
		}
		argPtrs[i] = ptr
	}
	result, err := fn.Call(0, argPtrs)
	if err != nil {
		return nil, err
	}
	if fn.Return.IsVoid() {
		return jc.Undefined(), nil
	}
	retTD := bridge.TypeDataOf(fn.Return)
	return retTD.Marshaller.ToScript(cc, jc, result, true, true)
}

func (m *functionMarshaller) FromScript(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) (uintptr, error) {
	if v.Kind() != jsengine.Function {
		return 0, bridge.NewTypeError(m.typ.Name, "expected a function")
	}
	sig := m.typ.FuncSignature()
	trampoline, err := m.reg.Create(jc, sig, v)
	if err != nil {
		return 0, bridge.NewTypeError(m.typ.Name, "creating callback trampoline: %v", err)
	}
	cc.AddCallback(trampoline, func() { m.reg.Release(trampoline) })
	ptr := cc.Alloc(m.typ)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(trampoline))
	cc.Heap().WriteBytes(ptr, buf)
	return ptr, nil
}
