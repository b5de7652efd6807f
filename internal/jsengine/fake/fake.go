// Package fake is a pure-Go, single-process stand-in for jsengine.Engine.
// It exists so internal/bridge, internal/marshal, internal/proxy and
// internal/prototype can be exercised by table-driven tests without an
// embedded VM; it has none of v8's GC, so MakeWeak/ClearWeak are simulated
// with explicit Collect calls instead of a real garbage collector.
package fake

import (
	"context"
	"fmt"

	"github.com/cryguy/tsbridge/internal/jsengine"
)

type value struct {
	kind jsengine.Kind
	b    bool
	f    float64
	s    string
	buf  []byte
	obj  *object
	fn   jsengine.FunctionCallback
}

func (v *value) Kind() jsengine.Kind { return v.kind }
func (v *value) IsNullOrUndefined() bool {
	return v.kind == jsengine.Null || v.kind == jsengine.Undefined
}
func (v *value) Bool() bool    { return v.b }
func (v *value) Float64() float64 { return v.f }
func (v *value) String() string {
	if v.kind == jsengine.String {
		return v.s
	}
	return fmt.Sprint(v.f)
}

type object struct {
	value
	props       map[string]jsengine.Value
	internal    []uintptr
	order       []string // array element order, when kind == Array
	accessors   map[string][2]jsengine.FunctionCallback
	accessorCtx jsengine.Ctx
}

func (o *object) Get(name string) (jsengine.Value, error) {
	if pair, ok := o.accessors[name]; ok && pair[0] != nil {
		return pair[0](&callInfo{ctx: o.accessorCtx.(*ctx), this: o})
	}
	if v, ok := o.props[name]; ok {
		return v, nil
	}
	return &value{kind: jsengine.Undefined}, nil
}
func (o *object) Set(name string, v jsengine.Value) error {
	if pair, ok := o.accessors[name]; ok {
		if pair[1] == nil {
			return fmt.Errorf("fake: property %q is not writable", name)
		}
		_, err := pair[1](&callInfo{ctx: o.accessorCtx.(*ctx), this: o, args: []jsengine.Value{v}})
		return err
	}
	if o.props == nil {
		o.props = map[string]jsengine.Value{}
	}
	if _, exists := o.props[name]; !exists {
		o.order = append(o.order, name)
	}
	o.props[name] = v
	return nil
}
func (o *object) InternalFieldCount() int { return len(o.internal) }
func (o *object) GetInternalField(i int) uintptr {
	if i < 0 || i >= len(o.internal) {
		return 0
	}
	return o.internal[i]
}
func (o *object) SetInternalField(i int, v uintptr) {
	for len(o.internal) <= i {
		o.internal = append(o.internal, 0)
	}
	o.internal[i] = v
}

type array struct {
	object
	items []jsengine.Value
}

func (a *array) Len() int { return len(a.items) }
func (a *array) GetIndex(i int) (jsengine.Value, error) {
	if i < 0 || i >= len(a.items) {
		return &value{kind: jsengine.Undefined}, nil
	}
	return a.items[i], nil
}
func (a *array) SetIndex(i int, v jsengine.Value) error {
	for len(a.items) <= i {
		a.items = append(a.items, &value{kind: jsengine.Undefined})
	}
	a.items[i] = v
	return nil
}

type resolver struct {
	p        *object
	settled  bool
	rejected bool
}

func (r *resolver) Promise() jsengine.Value { return r.p }
func (r *resolver) Resolve(v jsengine.Value) error {
	r.settled = true
	r.p.Set("__value", v)
	return nil
}
func (r *resolver) Reject(v jsengine.Value) error {
	r.settled = true
	r.rejected = true
	r.p.Set("__error", v)
	return nil
}

type callInfo struct {
	ctx  *ctx
	this jsengine.Obj
	args []jsengine.Value
}

func (c *callInfo) Context() jsengine.Ctx { return c.ctx }
func (c *callInfo) This() jsengine.Obj    { return c.this }
func (c *callInfo) Len() int              { return len(c.args) }
func (c *callInfo) Arg(i int) jsengine.Value {
	if i < 0 || i >= len(c.args) {
		return &value{kind: jsengine.Undefined}
	}
	return c.args[i]
}

type weakEntry struct {
	obj   *object
	param uintptr
	cb    jsengine.WeakCallback
}

type ctx struct {
	eng    *Engine
	global *object
}

func (c *ctx) Engine() jsengine.Engine { return c.eng }
func (c *ctx) Global() jsengine.Obj    { return c.global }
func (c *ctx) Undefined() jsengine.Value { return &value{kind: jsengine.Undefined} }
func (c *ctx) Null() jsengine.Value      { return &value{kind: jsengine.Null} }
func (c *ctx) NewBool(b bool) jsengine.Value {
	return &value{kind: jsengine.Bool, b: b}
}
func (c *ctx) NewNumber(f float64) jsengine.Value {
	return &value{kind: jsengine.Number, f: f}
}
func (c *ctx) NewString(s string) jsengine.Value {
	return &value{kind: jsengine.String, s: s}
}
func (c *ctx) NewObject() (jsengine.Obj, error) {
	return &object{value: value{kind: jsengine.Object}}, nil
}
func (c *ctx) NewArray(n int) (jsengine.Arr, error) {
	a := &array{object: object{value: value{kind: jsengine.Array}}, items: make([]jsengine.Value, n)}
	for i := range a.items {
		a.items[i] = &value{kind: jsengine.Undefined}
	}
	return a, nil
}
func (c *ctx) NewArrayBuffer(data []byte) (jsengine.Value, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &value{kind: jsengine.ArrayBuffer, buf: cp}, nil
}
func (c *ctx) ArrayBufferBytes(v jsengine.Value) ([]byte, bool) {
	fv, ok := v.(*value)
	if !ok || fv.kind != jsengine.ArrayBuffer {
		return nil, false
	}
	return fv.buf, true
}
func (c *ctx) NewFunction(name string, cb jsengine.FunctionCallback) (jsengine.Value, error) {
	return &value{kind: jsengine.Function, fn: cb}, nil
}
func (c *ctx) CallFunction(fn jsengine.Value, this jsengine.Value, args []jsengine.Value) (jsengine.Value, error) {
	fv, ok := fn.(*value)
	if !ok || fv.kind != jsengine.Function || fv.fn == nil {
		return nil, fmt.Errorf("fake: value is not callable")
	}
	var thisObj jsengine.Obj
	switch ov := this.(type) {
	case *object:
		thisObj = ov
	case *array:
		thisObj = ov
	case *value:
		if ov != nil && ov.obj != nil {
			thisObj = ov.obj
		}
	}
	return fv.fn(&callInfo{ctx: c, this: thisObj, args: args})
}
func (c *ctx) NewPromiseResolver() (jsengine.PromiseResolver, error) {
	p := &object{value: value{kind: jsengine.Object}}
	return &resolver{p: p}, nil
}
func (c *ctx) RunScript(_ context.Context, _, _ string) (jsengine.Value, error) {
	return nil, fmt.Errorf("fake: scripting not supported, this engine only exercises Go-level bridge calls")
}
func (c *ctx) ThrowTypeError(msg string) error  { return fmt.Errorf("TypeError: %s", msg) }
func (c *ctx) ThrowRangeError(msg string) error { return fmt.Errorf("RangeError: %s", msg) }

type objTemplate struct {
	internalFieldCount int
	accessors          map[string][2]jsengine.FunctionCallback
	values             map[string]jsengine.Value
	methods            map[string]jsengine.FunctionCallback
}

func (t *objTemplate) SetInternalFieldCount(n int) { t.internalFieldCount = n }
func (t *objTemplate) SetAccessor(name string, get, set jsengine.FunctionCallback) {
	if t.accessors == nil {
		t.accessors = map[string][2]jsengine.FunctionCallback{}
	}
	t.accessors[name] = [2]jsengine.FunctionCallback{get, set}
}
func (t *objTemplate) SetValue(name string, v jsengine.Value) {
	if t.values == nil {
		t.values = map[string]jsengine.Value{}
	}
	t.values[name] = v
}
func (t *objTemplate) SetMethod(name string, cb jsengine.FunctionCallback) {
	if t.methods == nil {
		t.methods = map[string]jsengine.FunctionCallback{}
	}
	t.methods[name] = cb
}
func (t *objTemplate) NewInstance(c jsengine.Ctx) (jsengine.Obj, error) {
	o := &object{value: value{kind: jsengine.Object}}
	o.internal = make([]uintptr, t.internalFieldCount)
	for name, v := range t.values {
		o.Set(name, v)
	}
	for name, cb := range t.methods {
		fc := cb
		fn, _ := c.NewFunction(name, fc)
		o.Set(name, fn)
	}
	for name, pair := range t.accessors {
		get, set := pair[0], pair[1]
		o.props2Accessor(name, c, get, set)
	}
	return o, nil
}

// props2Accessor installs an accessor pair as a pair of hidden get_/set_
// functions plus eager evaluation isn't possible without real accessor
// support, so the fake stores the getter/setter pair and Get/Set below
// dispatch through them when present.
func (o *object) props2Accessor(name string, c jsengine.Ctx, get, set jsengine.FunctionCallback) {
	if o.accessors == nil {
		o.accessors = map[string][2]jsengine.FunctionCallback{}
	}
	o.accessors[name] = [2]jsengine.FunctionCallback{get, set}
	o.accessorCtx = c
}

type Engine struct {
	weak map[*object]*weakEntry
}

// New returns a fresh fake engine.
func New() *Engine { return &Engine{weak: map[*object]*weakEntry{}} }

func (e *Engine) NewContext() (jsengine.Ctx, error) {
	return &ctx{eng: e, global: &object{value: value{kind: jsengine.Object}}}, nil
}
func (e *Engine) NewObjTemplate() (jsengine.ObjTemplate, error) { return &objTemplate{}, nil }
func (e *Engine) MakeWeak(obj jsengine.Obj, param uintptr, cb jsengine.WeakCallback) {
	o, ok := obj.(*object)
	if !ok {
		return
	}
	e.weak[o] = &weakEntry{obj: o, param: param, cb: cb}
}
func (e *Engine) ClearWeak(obj jsengine.Obj) {
	o, ok := obj.(*object)
	if !ok {
		return
	}
	delete(e.weak, o)
}

// Collect simulates the script GC deciding to collect obj: if a weak
// reference is still attached, its callback fires exactly as a real
// engine's weak-callback dispatch would.
func (e *Engine) Collect(obj jsengine.Obj) {
	o, ok := obj.(*object)
	if !ok {
		return
	}
	entry, ok := e.weak[o]
	if !ok {
		return
	}
	delete(e.weak, o)
	entry.cb(entry.param)
}

func (e *Engine) Dispose() {}
