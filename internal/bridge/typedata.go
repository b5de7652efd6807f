package bridge

import (
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// Marshaller is the capability set every value-kind converter implements.
// CanAccept decides, without side effects, whether a script value can feed
// FromScript. ToScript reads the native value at ptr and produces a script
// value; needsCopy and isHostReturn steer the non-trivial-object policy of
// §4.3. FromScript converts a script value into native storage and returns
// its address.
type Marshaller interface {
	CanAccept(cc *CallContext, jc jsengine.Ctx, v jsengine.Value) bool
	ToScript(cc *CallContext, jc jsengine.Ctx, ptr uintptr, needsCopy, isHostReturn bool) (jsengine.Value, error)
	FromScript(cc *CallContext, jc jsengine.Ctx, v jsengine.Value) (uintptr, error)
}

// Doc is the documentation record carried on a type or function, consumed
// by declaration-file emission and, for functions, to tell sync from async
// call proxies apart.
type Doc struct {
	Summary string
	Async   bool
}

// TypeData is the bridge's opaque per-type slot (registry.Type.UserData()).
// It is populated once during commit phase 1 (marshaller installation) and
// phase 2 (symbol walk, for non-trivial classes).
type TypeData struct {
	ScriptName  string
	Marshaller  Marshaller
	Template    jsengine.ObjTemplate
	Manager     *ObjectManager
	ElementType *registry.Type
	Doc         Doc
}

// TypeDataOf returns t's bridge user data, or nil if commit hasn't touched
// this type yet.
func TypeDataOf(t *registry.Type) *TypeData {
	if t == nil {
		return nil
	}
	td, _ := t.UserData().(*TypeData)
	return td
}
