// Package jsengine is the thin contract the bridge consumes from a hosted
// script engine: isolates, contexts, values, object templates with internal
// fields, accessor properties, and weak references with a GC callback. The
// v8engine subpackage satisfies it over github.com/tommie/v8go; the fake
// subpackage satisfies it in pure Go for tests that don't need a real VM.
package jsengine

import "context"

// Kind classifies a Value the way the engine's own value hierarchy does.
type Kind int

const (
	Undefined Kind = iota
	Null
	Bool
	Number
	String
	ArrayBuffer
	Object
	Array
	Function
)

// Value is any script-side value handle.
type Value interface {
	Kind() Kind
	IsNullOrUndefined() bool
	Bool() bool
	Float64() float64
	String() string
}

// Obj is a script-side object: property access plus a fixed number of
// internal slots invisible to script-side property enumeration.
type Obj interface {
	Value
	Get(name string) (Value, error)
	Set(name string, v Value) error
	InternalFieldCount() int
	GetInternalField(i int) uintptr
	SetInternalField(i int, v uintptr)
}

// Arr is a script-side array.
type Arr interface {
	Obj
	Len() int
	GetIndex(i int) (Value, error)
	SetIndex(i int, v Value) error
}

// CallInfo is what a FunctionCallback receives for one invocation.
type CallInfo interface {
	Context() Ctx
	This() Obj
	Len() int
	Arg(i int) Value
}

// FunctionCallback is a native function exposed to script.
type FunctionCallback func(info CallInfo) (Value, error)

// WeakCallback fires once, on the host thread, when the script GC collects
// the object a weak reference was attached to. param is whatever opaque
// value MakeWeak was given.
type WeakCallback func(param uintptr)

// PromiseResolver pairs a promise with the resolve/reject pair that settles it.
type PromiseResolver interface {
	Promise() Value
	Resolve(v Value) error
	Reject(v Value) error
}

// ObjTemplate is a reusable class shape: internal fields, accessors, plain
// data properties and methods, instantiated per wrapper via NewInstance.
type ObjTemplate interface {
	SetInternalFieldCount(n int)
	SetAccessor(name string, get, set FunctionCallback)
	SetValue(name string, v Value)
	SetMethod(name string, cb FunctionCallback)
	NewInstance(ctx Ctx) (Obj, error)
}

// Ctx is a single script context (global scope) inside an isolate.
type Ctx interface {
	Engine() Engine
	Global() Obj
	Undefined() Value
	Null() Value
	NewBool(b bool) Value
	NewNumber(f float64) Value
	NewString(s string) Value
	NewObject() (Obj, error)
	NewArray(n int) (Arr, error)
	NewArrayBuffer(data []byte) (Value, error)
	ArrayBufferBytes(v Value) ([]byte, bool)
	NewFunction(name string, cb FunctionCallback) (Value, error)
	// CallFunction invokes a script-side function value directly, used by
	// the callback registry's trampoline handler to re-enter script from a
	// reverse call.
	CallFunction(fn Value, this Value, args []Value) (Value, error)
	NewPromiseResolver() (PromiseResolver, error)
	RunScript(ctx context.Context, src, origin string) (Value, error)
	ThrowTypeError(msg string) error
	ThrowRangeError(msg string) error
}

// Engine owns one isolate: the single-threaded runtime that every Ctx it
// creates shares. All of Engine's methods, and every value/object reachable
// from it, must only be touched from the host thread that owns the Engine.
type Engine interface {
	NewContext() (Ctx, error)
	NewObjTemplate() (ObjTemplate, error)
	MakeWeak(obj Obj, param uintptr, cb WeakCallback)
	ClearWeak(obj Obj)
	Dispose()
}
