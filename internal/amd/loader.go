// Package amd implements the AMD-style module loader of spec §4.9: the
// worker's compiled output registers itself through define(id, deps,
// factory) the same way RequireJS loaders work, and script that wants a
// module calls require(id) to resolve it.
package amd

import (
	"fmt"

	"github.com/cryguy/tsbridge/internal/jsengine"
)

// Factory builds a module's exports once its dependencies are resolved.
// deps is positional, matching the dependency id list passed to Define.
type Factory func(deps []jsengine.Value) (jsengine.Value, error)

type module struct {
	deps    []string
	factory Factory
	exports jsengine.Value
	state   moduleState
}

type moduleState int

const (
	stateDefined moduleState = iota
	stateResolving
	stateResolved
)

// Loader is one script context's module table. It is not safe for
// concurrent use from more than one goroutine, matching the single-isolate
// rule every other package in this bridge follows.
type Loader struct {
	jc           jsengine.Ctx
	modules      map[string]*module
	requireFnVal jsengine.Value
}

// New returns an empty loader bound to jc, the context whose
// globalThis.define/globalThis.require it will install.
func New(jc jsengine.Ctx) *Loader {
	return &Loader{jc: jc, modules: make(map[string]*module)}
}

// Define registers id (builtin modules use a fixed id; anonymous AMD
// modules from compiled TypeScript always carry an id assigned by
// internal/tscompile's AMD-wrapping pass, so id is never empty here).
// Re-defining an id replaces its factory and clears any memoized exports.
func (l *Loader) Define(id string, deps []string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("amd: anonymous module definitions are not supported, every module needs an id")
	}
	l.modules[id] = &module{deps: deps, factory: factory}
	return nil
}

// Require resolves id's dependency graph depth-first and returns its
// exports, memoizing the result. A dependency cycle does not error: the
// module in the middle of resolving gets back whatever partial exports
// value has been produced so far, the conventional CommonJS/AMD behavior
// for circular requires.
func (l *Loader) Require(id string) (jsengine.Value, error) {
	m, ok := l.modules[id]
	if !ok {
		return nil, fmt.Errorf("amd: no module registered with id %q", id)
	}
	return l.resolve(id, m)
}

func (l *Loader) resolve(id string, m *module) (jsengine.Value, error) {
	switch m.state {
	case stateResolved:
		return m.exports, nil
	case stateResolving:
		// Circular require: return whatever this module has exported so
		// far (possibly undefined, if it hasn't run its factory body
		// past this point yet).
		if m.exports == nil {
			return l.jc.Undefined(), nil
		}
		return m.exports, nil
	}

	m.state = stateResolving
	depVals := make([]jsengine.Value, len(m.deps))
	var cjsExports jsengine.Obj
	for i, depID := range m.deps {
		// "require" and "exports" are CommonJS free variables, not
		// registered modules: esbuild's CommonJS output (what
		// internal/tscompile wraps in an AMD shell) expects a fresh
		// exports object per module and a require(id) function, not a
		// shared singleton module looked up by id.
		switch depID {
		case "exports":
			obj, err := l.jc.NewObject()
			if err != nil {
				return nil, fmt.Errorf("amd: allocating exports object for %q: %w", id, err)
			}
			cjsExports = obj
			m.exports = obj
			depVals[i] = obj
			continue
		case "require":
			depVals[i] = l.commonJSRequire()
			continue
		}
		dm, ok := l.modules[depID]
		if !ok {
			return nil, fmt.Errorf("amd: module %q depends on unregistered module %q", id, depID)
		}
		v, err := l.resolve(depID, dm)
		if err != nil {
			return nil, fmt.Errorf("amd: resolving dependency %q of %q: %w", depID, id, err)
		}
		depVals[i] = v
	}

	result, err := m.factory(depVals)
	if err != nil {
		return nil, fmt.Errorf("amd: running factory for %q: %w", id, err)
	}
	// A CommonJS-style factory populates the exports object it was handed
	// and returns undefined; a classic AMD factory returns its exports
	// directly. Prefer the returned value only when the factory actually
	// produced one.
	exports := result
	if cjsExports != nil && (result == nil || result.IsNullOrUndefined()) {
		exports = cjsExports
	}
	m.exports = exports
	m.state = stateResolved
	return exports, nil
}

// commonJSRequire lazily builds the require(id) function value handed to
// CommonJS-style module factories, memoized since every module shares the
// same synchronous resolution behavior.
func (l *Loader) commonJSRequire() jsengine.Value {
	if l.requireFnVal != nil {
		return l.requireFnVal
	}
	fn, err := l.jc.NewFunction("require", l.requireCallback)
	if err != nil {
		// NewFunction failing here means the engine itself is broken;
		// every other registration in Install would fail the same way,
		// so surface it the same way a nil would: callers see undefined.
		return l.jc.Undefined()
	}
	l.requireFnVal = fn
	return fn
}

// RegisterBuiltin installs a module whose exports are already computed
// (an internal/builtins peripheral, for instance), so Require(id) returns
// v without ever calling a factory.
func (l *Loader) RegisterBuiltin(id string, v jsengine.Value) {
	l.modules[id] = &module{exports: v, state: stateResolved}
}

// Install wires globalThis.define/globalThis.require onto l's context,
// the same way worker source gets wrapped with an ES-module loader before
// execution.
func (l *Loader) Install() error {
	defineFn, err := l.jc.NewFunction("define", l.defineCallback)
	if err != nil {
		return err
	}
	requireFn, err := l.jc.NewFunction("require", l.requireCallback)
	if err != nil {
		return err
	}
	if err := l.jc.Global().Set("define", defineFn); err != nil {
		return err
	}
	return l.jc.Global().Set("require", requireFn)
}

func (l *Loader) defineCallback(info jsengine.CallInfo) (jsengine.Value, error) {
	jc := info.Context()
	if info.Len() < 3 {
		return nil, jc.ThrowRangeError("define(id, deps, factory) expects 3 arguments")
	}
	id := info.Arg(0).String()
	depsArr, ok := info.Arg(1).(jsengine.Arr)
	if !ok {
		return nil, jc.ThrowTypeError("define: deps must be an array")
	}
	deps := make([]string, depsArr.Len())
	for i := range deps {
		v, err := depsArr.GetIndex(i)
		if err != nil {
			return nil, err
		}
		deps[i] = v.String()
	}
	factoryFn := info.Arg(2)
	factory := func(depVals []jsengine.Value) (jsengine.Value, error) {
		return jc.CallFunction(factoryFn, jc.Undefined(), depVals)
	}
	if err := l.Define(id, deps, factory); err != nil {
		return nil, jc.ThrowTypeError(err.Error())
	}
	return jc.Undefined(), nil
}

func (l *Loader) requireCallback(info jsengine.CallInfo) (jsengine.Value, error) {
	jc := info.Context()
	if info.Len() < 1 {
		return nil, jc.ThrowRangeError("require(id) expects 1 argument")
	}
	v, err := l.Require(info.Arg(0).String())
	if err != nil {
		return nil, jc.ThrowTypeError(err.Error())
	}
	return v, nil
}
