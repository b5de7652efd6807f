// Package marshal implements the bidirectional value converters of spec
// §4.3: one Marshaller per type kind, installed onto each registry.Type's
// bridge user data during commit phase 1.
package marshal

import (
	"log/slog"

	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/callback"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// Env bundles the collaborators a marshaller needs at installation time.
type Env struct {
	Engine    jsengine.Engine
	Heap      *bridge.Heap
	Callbacks *callback.Registry
	Log       *slog.Logger
}

// Install ensures t has a bridge.Marshaller attached (recursing first into
// an array's or pointer's element type; struct field and function argument
// types are not installed here), choosing the marshaller kind by the priority
// order of spec §4.7 phase 1: array element, string/buffer, primitive or
// opaque, function, pointer, trivial struct, non-trivial object.
func Install(t *registry.Type, env Env) *bridge.TypeData {
	if t == nil {
		return nil
	}
	td := bridge.TypeDataOf(t)
	if td == nil {
		td = &bridge.TypeData{ScriptName: t.Name}
		t.SetUserData(td)
	}
	if td.Marshaller != nil {
		return td
	}

	switch {
	case t.ArrayElem != nil:
		elemTD := Install(t.ArrayElem, env)
		td.ElementType = t.ArrayElem
		td.Marshaller = newArrayMarshaller(t, t.ArrayElem, elemTD)
	case t == registry.StringType:
		td.Marshaller = newStringMarshaller()
	case t == registry.BufferType:
		td.Marshaller = newByteBufferMarshaller()
	case t.Flags.Primitive || t.Flags.Enum || (t.Flags.Opaque && t != registry.StringType && t != registry.BufferType):
		td.Marshaller = newPrimitiveMarshaller(t)
	case t.Flags.Function:
		td.Marshaller = newFunctionMarshaller(t, env.Callbacks)
	case t.Flags.Pointer:
		elemTD := Install(t.PointerElem, env)
		td.Marshaller = newPointerMarshaller(t, elemTD)
	case isTrivialStruct(t):
		td.Marshaller = newStructMarshaller(t)
	default:
		mgr := bridge.NewObjectManager(t, env.Heap, env.Engine, env.Log)
		td.Manager = mgr
		td.Marshaller = newObjectMarshaller(t, mgr)
	}
	return td
}

// isTrivialStruct mirrors the registry's own trivial/non-trivial
// distinction: trivially constructible and destructible, not a class with
// a host object manager.
func isTrivialStruct(t *registry.Type) bool {
	return t.Flags.TriviallyConstructible && t.Flags.TriviallyDestructible && len(t.Constructors) == 0
}
