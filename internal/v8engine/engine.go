//go:build v8

// Package v8engine implements internal/jsengine's contract over
// github.com/tommie/v8go, gated behind the "v8" build tag the same way
// backend_v8.go/backend_fake.go split a real V8 backend from a default one
// (the default build — no "v8" tag — uses internal/jsengine/fake instead;
// this bridge has no QuickJS-specific code path of its own since spec §6
// only names V8's capability list).
//
// Internal field slots hold uintptr addresses into this bridge's virtual
// heap (internal/bridge.Heap), never real pointers, so they are stored as
// plain V8 numbers rather than v8go's pointer-carrying External values —
// consistent with spec §9's "no unsafe.Pointer" design note.
package v8engine

import (
	"context"
	"fmt"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/tsbridge/internal/jsengine"
)

// Engine owns one V8 isolate, matching pool.go's newV8Worker: one
// *v8.Isolate + one *v8.Context per worker.
type Engine struct {
	iso  *v8.Isolate
	weak map[*v8.Object]weakEntry
}

type weakEntry struct {
	param uintptr
	cb    jsengine.WeakCallback
}

// New creates a fresh isolate, mirroring the v8.NewIsolate() call in
// pool.go/execute.go (no resource-constraint options here — those get
// applied per-worker via v8.WithResourceConstraints, a concern that
// belongs to this bridge's host, not to the engine adapter).
func New() *Engine {
	return &Engine{iso: v8.NewIsolate(), weak: make(map[*v8.Object]weakEntry)}
}

func (e *Engine) NewContext() (jsengine.Ctx, error) {
	c := v8.NewContext(e.iso)
	return &ctx{eng: e, v8ctx: c}, nil
}

func (e *Engine) NewObjTemplate() (jsengine.ObjTemplate, error) {
	return &objTemplate{iso: e.iso, tmpl: v8.NewObjectTemplate(e.iso)}, nil
}

// MakeWeak registers cb to fire when obj is garbage collected, keyed on
// the underlying *v8.Object so ClearWeak can find it again.
func (e *Engine) MakeWeak(obj jsengine.Obj, param uintptr, cb jsengine.WeakCallback) {
	o, ok := obj.(*object)
	if !ok {
		return
	}
	e.weak[o.v8obj] = weakEntry{param: param, cb: cb}
	o.v8obj.SetWeak(func() {
		e.mu_fireWeak(o.v8obj)
	})
}

func (e *Engine) mu_fireWeak(v8obj *v8.Object) {
	entry, ok := e.weak[v8obj]
	if !ok {
		return
	}
	delete(e.weak, v8obj)
	entry.cb(entry.param)
}

func (e *Engine) ClearWeak(obj jsengine.Obj) {
	o, ok := obj.(*object)
	if !ok {
		return
	}
	delete(e.weak, o.v8obj)
	o.v8obj.ClearWeak()
}

func (e *Engine) Dispose() {
	e.iso.Dispose()
}

type ctx struct {
	eng   *Engine
	v8ctx *v8.Context
}

func (c *ctx) Engine() jsengine.Engine { return c.eng }
func (c *ctx) Global() jsengine.Obj    { return &object{eng: c.eng, v8obj: c.v8ctx.Global()} }
func (c *ctx) Undefined() jsengine.Value {
	return &value{eng: c.eng, v8val: v8.Undefined(c.eng.iso)}
}
func (c *ctx) Null() jsengine.Value {
	return &value{eng: c.eng, v8val: v8.Null(c.eng.iso)}
}
func (c *ctx) NewBool(b bool) jsengine.Value {
	v, _ := v8.NewValue(c.eng.iso, b)
	return &value{eng: c.eng, v8val: v}
}
func (c *ctx) NewNumber(f float64) jsengine.Value {
	v, _ := v8.NewValue(c.eng.iso, f)
	return &value{eng: c.eng, v8val: v}
}
func (c *ctx) NewString(s string) jsengine.Value {
	v, _ := v8.NewValue(c.eng.iso, s)
	return &value{eng: c.eng, v8val: v}
}
func (c *ctx) NewObject() (jsengine.Obj, error) {
	tmpl := v8.NewObjectTemplate(c.eng.iso)
	obj, err := tmpl.NewInstance(c.v8ctx)
	if err != nil {
		return nil, err
	}
	return &object{eng: c.eng, v8obj: obj}, nil
}
func (c *ctx) NewArray(n int) (jsengine.Arr, error) {
	val, err := c.v8ctx.RunScript(fmt.Sprintf("new Array(%d)", n), "tsbridge-internal.js")
	if err != nil {
		return nil, err
	}
	obj, err := val.AsObject()
	if err != nil {
		return nil, err
	}
	return &arr{object: object{eng: c.eng, v8obj: obj}}, nil
}
func (c *ctx) NewArrayBuffer(data []byte) (jsengine.Value, error) {
	buf, err := v8.NewArrayBuffer(c.eng.iso, data)
	if err != nil {
		return nil, err
	}
	return &value{eng: c.eng, v8val: buf}, nil
}
func (c *ctx) ArrayBufferBytes(v jsengine.Value) ([]byte, bool) {
	fv, ok := v.(v8Valuer)
	if !ok {
		return nil, false
	}
	data, err := fv.v8Value().ArrayBufferGetBytes()
	if err != nil {
		return nil, false
	}
	return data, true
}
func (c *ctx) NewFunction(name string, cb jsengine.FunctionCallback) (jsengine.Value, error) {
	tmpl := v8.NewFunctionTemplate(c.eng.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		result, err := cb(&callInfo{eng: c.eng, v8ctx: c.v8ctx, info: info})
		if err != nil {
			msg, _ := v8.NewValue(c.eng.iso, err.Error())
			c.eng.iso.ThrowException(msg)
			return nil
		}
		if result == nil {
			return nil
		}
		rv, ok := result.(v8Valuer)
		if !ok {
			return nil
		}
		return rv.v8Value()
	})
	fn := tmpl.GetFunction(c.v8ctx)
	return &value{eng: c.eng, v8val: fn.Value}, nil
}
func (c *ctx) CallFunction(fn jsengine.Value, this jsengine.Value, args []jsengine.Value) (jsengine.Value, error) {
	fv, ok := fn.(v8Valuer)
	if !ok {
		return nil, fmt.Errorf("v8engine: value is not callable")
	}
	v8fn, err := fv.v8Value().AsFunction()
	if err != nil {
		return nil, err
	}
	v8args := make([]v8.Valuer, len(args))
	for i, a := range args {
		av, ok := a.(v8Valuer)
		if !ok {
			return nil, fmt.Errorf("v8engine: argument %d is not a v8engine value", i)
		}
		v8args[i] = av.v8Value()
	}
	var recv *v8.Object
	if tv, ok := this.(v8Valuer); ok && tv != nil {
		if o, err := tv.v8Value().AsObject(); err == nil {
			recv = o
		}
	}
	var out *v8.Value
	if recv != nil {
		out, err = v8fn.MethodCall(recv, v8args...)
	} else {
		out, err = v8fn.Call(v8.Undefined(c.eng.iso), v8args...)
	}
	if err != nil {
		return nil, err
	}
	return &value{eng: c.eng, v8val: out}, nil
}
func (c *ctx) NewPromiseResolver() (jsengine.PromiseResolver, error) {
	r, err := v8.NewPromiseResolver(c.v8ctx)
	if err != nil {
		return nil, err
	}
	return &resolver{eng: c.eng, r: r}, nil
}
func (c *ctx) RunScript(goCtx context.Context, src, origin string) (jsengine.Value, error) {
	v, err := c.v8ctx.RunScript(src, origin)
	if err != nil {
		return nil, err
	}
	return &value{eng: c.eng, v8val: v}, nil
}
func (c *ctx) ThrowTypeError(msg string) error {
	v, _ := v8.NewValue(c.eng.iso, "TypeError: "+msg)
	c.eng.iso.ThrowException(v)
	return fmt.Errorf("TypeError: %s", msg)
}
func (c *ctx) ThrowRangeError(msg string) error {
	v, _ := v8.NewValue(c.eng.iso, "RangeError: "+msg)
	c.eng.iso.ThrowException(v)
	return fmt.Errorf("RangeError: %s", msg)
}
