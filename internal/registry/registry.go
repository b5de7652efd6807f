// Package registry implements the reflection registry the bridge walks
// during commit: namespaces, types, functions and values describing the
// native surface a script may call into.
package registry

import "fmt"

// Flags mirrors the meta-flag set a type descriptor carries.
type Flags struct {
	Primitive              bool
	Integral               bool
	Unsigned               bool
	FloatingPoint          bool
	Opaque                 bool
	Enum                   bool
	Function               bool
	Pointer                bool
	TriviallyConstructible bool
	TriviallyDestructible  bool
}

// PropertyKind distinguishes the role a Property plays on its owning Type.
type PropertyKind int

const (
	PropField PropertyKind = iota
	PropMethod
	PropStaticField
	PropStaticMethod
	PropPseudo
)

// Property is one named member of a Type: a field, method, or static member.
type Property struct {
	Name       string
	Offset     int64 // negative: not a field
	Type       *Type
	Readable   bool
	Writable   bool
	Kind       PropertyKind
	Async      bool
	ThisOffset int64 // up-cast adjustment applied before method dispatch
	Func       *Function
	Addr       uintptr // bound address, for PropStaticField
}

// Base records one base type in a derivation list, with the byte offset
// needed to up-cast a derived pointer to the base representation.
type Base struct {
	Type   *Type
	Offset int64
}

// EnumField is one named value of an enum type.
type EnumField struct {
	Name  string
	Value int64
}

// NativeFunc is the bound native call target: given a `this` pointer (nil
// for free functions) and raw argument pointers, it invokes native code and
// returns a pointer to the result (nil if void) or an error.
type NativeFunc func(self uintptr, args []uintptr) (uintptr, error)

// Function describes a callable: free function, method, or constructor.
type Function struct {
	Name   string
	Return *Type
	Args   []*Type
	Async  bool
	Call   NativeFunc
}

// Type is the read-only type descriptor the bridge consumes. Size/Flags/
// Properties/Bases/Constructors/Destructor/EnumFields/PointerElem/ArrayElem
// mirror spec §3's attribute list. UserData is the bridge's opaque slot,
// set exactly once during commit by internal/marshal's Install.
type Type struct {
	Name         string
	Size         uintptr
	Flags        Flags
	Properties   []*Property
	Bases        []*Base
	Constructors []*Function
	Destructor   *Function
	EnumFields   []*EnumField
	PointerElem  *Type
	ArrayElem    *Type
	FuncReturn   *Type   // set when Flags.Function
	FuncArgs     []*Type // set when Flags.Function

	userData any
}

// FuncSignature builds the Function descriptor implied by a function-kind
// Type's FuncReturn/FuncArgs, for passing to the callback registry.
func (t *Type) FuncSignature() *Function {
	return &Function{Name: t.Name, Return: t.FuncReturn, Args: t.FuncArgs}
}

// IsVoid reports whether t represents "no return value" for call dispatch:
// a nil type, or a zero-size type other than an enum or the two opaque
// host types (string, ArrayBuffer) that carry no in-memory representation
// of their own but are never void. Matches declgen's typeName size check so a
// function/method/callback returning string or ArrayBuffer always runs
// its marshaller instead of being treated as returning undefined.
func (t *Type) IsVoid() bool {
	return t == nil || (t.Size == 0 && !t.Flags.Enum && t != StringType && t != BufferType)
}

// UserData returns the bridge's opaque per-type slot, or nil if unset.
func (t *Type) UserData() any { return t.userData }

// SetUserData installs the bridge's opaque per-type slot. Commit calls this
// exactly once per type; a second call panics to catch accidental re-commit.
func (t *Type) SetUserData(v any) {
	if t.userData != nil {
		panic(fmt.Sprintf("registry: user data already set for type %q", t.Name))
	}
	t.userData = v
}

// Value is a named, typed, addressable piece of native storage installed
// directly on a script scope (module export or global).
type Value struct {
	Name string
	Type *Type
	Addr uintptr
}

// Namespace is a symbol container: the global namespace and every nested
// module the commit phase walks.
type Namespace struct {
	Name       string
	Functions  []*Function
	Types      []*Type
	Values     []*Value
	Namespaces []*Namespace
}

func (ns *Namespace) RegisterFunction(fn *Function) { ns.Functions = append(ns.Functions, fn) }
func (ns *Namespace) RegisterType(t *Type)           { ns.Types = append(ns.Types, t) }
func (ns *Namespace) RegisterValue(v *Value)         { ns.Values = append(ns.Values, v) }

// RegisterNamespace returns the named child namespace, creating it (and any
// missing ancestors are not implied: this call is always one level deep).
func (ns *Namespace) RegisterNamespace(name string) *Namespace {
	for _, child := range ns.Namespaces {
		if child.Name == name {
			return child
		}
	}
	child := &Namespace{Name: name}
	ns.Namespaces = append(ns.Namespaces, child)
	return child
}

// StringType and BufferType are the two well-known opaque host types that
// get a dedicated marshaller (string, byte buffer) rather than the generic
// primitive/opaque one, matched by identity rather than by flag.
var (
	BoolType = &Type{
		Name:  "bool",
		Size:  1,
		Flags: Flags{Primitive: true, Integral: true, Unsigned: true, TriviallyConstructible: true, TriviallyDestructible: true},
	}
	StringType = &Type{
		Name:  "string",
		Flags: Flags{Opaque: true, TriviallyConstructible: true, TriviallyDestructible: true},
	}
	BufferType = &Type{
		Name:  "ArrayBuffer",
		Flags: Flags{Opaque: true, TriviallyConstructible: true, TriviallyDestructible: true},
	}
)

// Registry is the root container the bridge commits from.
type Registry struct {
	global *Namespace
}

// New returns an empty registry with an anonymous global namespace.
func New() *Registry {
	return &Registry{global: &Namespace{Name: ""}}
}

// Global returns the root namespace commit walks.
func (r *Registry) Global() *Namespace { return r.global }
