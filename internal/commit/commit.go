// Package commit implements the binding commit phase of spec §4.7: the
// one-shot walk that installs marshallers, builds non-trivial classes'
// script-side templates, installs every registry symbol onto the script
// global scope or a module object, wires the numeric-intrinsic and timer
// globals of phase 3, and returns the generated declaration-file text of
// phase 4 (internal/declgen does the actual text generation).
package commit

import (
	"log/slog"

	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/callback"
	"github.com/cryguy/tsbridge/internal/declgen"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/marshal"
	"github.com/cryguy/tsbridge/internal/proxy"
	"github.com/cryguy/tsbridge/internal/prototype"
	"github.com/cryguy/tsbridge/internal/registry"
	"github.com/cryguy/tsbridge/internal/workerpool"
)

// Timers is the peripheral timer module's contract, consumed for phase 3's
// intrinsic installation. A nil Timers in Env skips timer global
// installation entirely (useful for tests that don't need them).
type Timers interface {
	SetTimeout(fn jsengine.Value, ms float64) float64
	SetInterval(fn jsengine.Value, ms float64) float64
	ClearTimeout(id float64)
	ClearInterval(id float64)
}

// Env bundles every collaborator the commit phase threads through to the
// packages that do the real work.
type Env struct {
	Engine    jsengine.Engine
	Heap      *bridge.Heap
	Callbacks *callback.Registry
	Pool      *workerpool.Pool
	Timers    Timers
	Log       *slog.Logger
}

func (e Env) marshalEnv() marshal.Env {
	return marshal.Env{Engine: e.Engine, Heap: e.Heap, Callbacks: e.Callbacks, Log: e.Log}
}

func (e Env) protoEnv() prototype.Env {
	return prototype.Env{Engine: e.Engine, Heap: e.Heap, Pool: e.Pool}
}

// Result is what a successful Commit produces beyond its side effects on
// jc: the declaration-file text of spec §4.7 phase 4, ready to be written
// to internal/lib/core.d.ts (or wherever the host chooses) by the caller —
// commit itself never touches a filesystem, per spec §1's scoping of
// filesystem details to the CLI boundary.
type Result struct {
	Declaration string
}

// Commit runs all four phases of spec §4.7 against reg, installing onto
// jc's global scope. IO/capacity failures belong to the caller (decl-file
// writing), not to Commit; Commit itself only fails on a structural error
// in the registry (e.g. a class with no host object manager).
func Commit(jc jsengine.Ctx, reg *registry.Registry, env Env) (*Result, error) {
	log := env.Log
	if log == nil {
		log = slog.Default()
	}

	if err := installAllMarshallers(reg.Global(), env, log); err != nil {
		return nil, err
	}
	if err := installNamespace(jc, jc.Global(), reg.Global(), env, true); err != nil {
		return nil, err
	}
	installIntrinsics(jc, reg.Global(), env)

	return &Result{Declaration: declgen.Emit(reg)}, nil
}

// installAllMarshallers is phase 1: every type reachable from the registry
// — declared data types, and every function/method/constructor argument
// and return type — gets a marshaller (marshal.Install is idempotent and
// recurses into array/pointer element types on its own).
func installAllMarshallers(ns *registry.Namespace, env Env, log *slog.Logger) error {
	for _, t := range ns.Types {
		marshal.Install(t, env.marshalEnv())
		for _, p := range t.Properties {
			if p.Func != nil {
				installFuncArgTypes(p.Func, env)
			}
		}
		for _, ctor := range t.Constructors {
			installFuncArgTypes(ctor, env)
		}
		if t.Destructor != nil {
			installFuncArgTypes(t.Destructor, env)
		}
	}
	for _, fn := range ns.Functions {
		installFuncArgTypes(fn, env)
	}
	for _, v := range ns.Values {
		marshal.Install(v.Type, env.marshalEnv())
	}
	for _, child := range ns.Namespaces {
		if err := installAllMarshallers(child, env, log); err != nil {
			return err
		}
	}
	return nil
}

func installFuncArgTypes(fn *registry.Function, env Env) {
	if fn.Return != nil {
		marshal.Install(fn.Return, env.marshalEnv())
	}
	for _, a := range fn.Args {
		marshal.Install(a, env.marshalEnv())
	}
}

// installNamespace is phase 2's symbol walk: isGlobal namespaces install
// directly onto target (the script global object); nested namespaces get
// their own script object installed as a module under their name.
func installNamespace(jc jsengine.Ctx, target jsengine.Obj, ns *registry.Namespace, env Env, isGlobal bool) error {
	for _, fn := range ns.Functions {
		if err := installFunction(jc, target, fn, env); err != nil {
			return err
		}
	}
	for _, t := range ns.Types {
		if err := installDataType(jc, target, t, env); err != nil {
			return err
		}
	}
	for _, v := range ns.Values {
		if err := installValue(jc, target, v, env); err != nil {
			return err
		}
	}
	for _, child := range ns.Namespaces {
		childObj, err := jc.NewObject()
		if err != nil {
			return bridge.NewTypeError(child.Name, "allocating module object: %v", err)
		}
		if err := installNamespace(jc, childObj, child, env, false); err != nil {
			return err
		}
		if err := target.Set(child.Name, childObj); err != nil {
			return bridge.NewTypeError(child.Name, "installing module: %v", err)
		}
	}
	return nil
}

func installFunction(jc jsengine.Ctx, target jsengine.Obj, fn *registry.Function, env Env) error {
	var cb jsengine.FunctionCallback
	if fn.Async {
		cb = proxy.NewFreeFunctionAsync(fn, env.Heap, env.Pool)
	} else {
		cb = proxy.NewFreeFunction(fn, env.Heap)
	}
	v, err := jc.NewFunction(fn.Name, cb)
	if err != nil {
		return bridge.NewTypeError(fn.Name, "installing function: %v", err)
	}
	return target.Set(fn.Name, v)
}

func installValue(jc jsengine.Ctx, target jsengine.Obj, v *registry.Value, env Env) error {
	td := bridge.TypeDataOf(v.Type)
	if td == nil || td.Marshaller == nil {
		return bridge.NewTypeError(v.Name, "no marshaller installed for value %q", v.Name)
	}
	cc := bridge.NewCallContext(env.Heap)
	defer cc.Drop()
	sv, err := td.Marshaller.ToScript(cc, jc, v.Addr, false, true)
	if err != nil {
		return err
	}
	return target.Set(v.Name, sv)
}

func installDataType(jc jsengine.Ctx, target jsengine.Obj, t *registry.Type, env Env) error {
	switch {
	case t.Flags.Enum:
		return installEnum(jc, target, t)
	case t.Flags.Primitive, isTrivialStruct(t):
		// Trivial/primitive aliases carry no runtime surface of their own;
		// they're consumed through whatever property or argument refers
		// to them, and appear in the declaration file only.
		return nil
	default:
		return installClass(jc, target, t, env)
	}
}

func isTrivialStruct(t *registry.Type) bool {
	return t.Flags.TriviallyConstructible && t.Flags.TriviallyDestructible && len(t.Constructors) == 0
}

func installEnum(jc jsengine.Ctx, target jsengine.Obj, t *registry.Type) error {
	obj, err := jc.NewObject()
	if err != nil {
		return bridge.NewTypeError(t.Name, "allocating enum object: %v", err)
	}
	for _, f := range t.EnumFields {
		if err := obj.Set(f.Name, jc.NewNumber(float64(f.Value))); err != nil {
			return bridge.NewTypeError(t.Name, "installing enum field %q: %v", f.Name, err)
		}
	}
	return target.Set(bridge.TypeDataOf(t).ScriptName, obj)
}

func installClass(jc jsengine.Ctx, target jsengine.Obj, t *registry.Type, env Env) error {
	cls, err := prototype.Build(t, env.protoEnv())
	if err != nil {
		return err
	}
	staticObj, err := cls.Static.NewInstance(jc)
	if err != nil {
		return bridge.NewTypeError(t.Name, "instantiating static surface: %v", err)
	}
	name := t.Name
	if td := bridge.TypeDataOf(t); td != nil && td.ScriptName != "" {
		name = td.ScriptName
	}
	return target.Set(name, staticObj)
}

// installIntrinsics is phase 3: numeric min/max constants for every
// integral primitive type the registry mentions, plus the timer globals
// when env.Timers is set.
func installIntrinsics(jc jsengine.Ctx, global *registry.Namespace, env Env) {
	for _, t := range collectIntegralTypes(global, map[*registry.Type]bool{}) {
		lo, hi := integralRange(t)
		name := t.Name
		if td := bridge.TypeDataOf(t); td != nil && td.ScriptName != "" {
			name = td.ScriptName
		}
		jc.Global().Set(name+"_MIN", jc.NewNumber(lo))
		jc.Global().Set(name+"_MAX", jc.NewNumber(hi))
	}
	if env.Timers != nil {
		installTimers(jc, env.Timers)
	}
}

func collectIntegralTypes(ns *registry.Namespace, seen map[*registry.Type]bool) []*registry.Type {
	var out []*registry.Type
	add := func(t *registry.Type) {
		if t != nil && t.Flags.Integral && t != registry.BoolType && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range ns.Types {
		add(t)
	}
	for _, fn := range ns.Functions {
		add(fn.Return)
		for _, a := range fn.Args {
			add(a)
		}
	}
	for _, child := range ns.Namespaces {
		out = append(out, collectIntegralTypes(child, seen)...)
	}
	return out
}

func integralRange(t *registry.Type) (lo, hi float64) {
	bits := t.Size * 8
	if t.Flags.Unsigned {
		return 0, float64(^uint64(0) >> (64 - bits))
	}
	return -float64(uint64(1) << (bits - 1)), float64(uint64(1)<<(bits-1)) - 1
}

func installTimers(jc jsengine.Ctx, timers Timers) {
	set := func(info jsengine.CallInfo) (jsengine.Value, error) {
		if info.Len() < 2 {
			return nil, jc.ThrowRangeError("setTimeout/setInterval: expected 2 arguments")
		}
		return jc.NewNumber(timers.SetTimeout(info.Arg(0), info.Arg(1).Float64())), nil
	}
	interval := func(info jsengine.CallInfo) (jsengine.Value, error) {
		if info.Len() < 2 {
			return nil, jc.ThrowRangeError("setInterval: expected 2 arguments")
		}
		return jc.NewNumber(timers.SetInterval(info.Arg(0), info.Arg(1).Float64())), nil
	}
	clearT := func(info jsengine.CallInfo) (jsengine.Value, error) {
		if info.Len() >= 1 {
			timers.ClearTimeout(info.Arg(0).Float64())
		}
		return jc.Undefined(), nil
	}
	clearI := func(info jsengine.CallInfo) (jsengine.Value, error) {
		if info.Len() >= 1 {
			timers.ClearInterval(info.Arg(0).Float64())
		}
		return jc.Undefined(), nil
	}
	setTimeoutFn, _ := jc.NewFunction("setTimeout", set)
	setIntervalFn, _ := jc.NewFunction("setInterval", interval)
	clearTimeoutFn, _ := jc.NewFunction("clearTimeout", clearT)
	clearIntervalFn, _ := jc.NewFunction("clearInterval", clearI)
	jc.Global().Set("setTimeout", setTimeoutFn)
	jc.Global().Set("setInterval", setIntervalFn)
	jc.Global().Set("clearTimeout", clearTimeoutFn)
	jc.Global().Set("clearInterval", clearIntervalFn)
}
