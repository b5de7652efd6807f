// Package declgen emits the TypeScript interface-declaration file of spec
// §4.7 phase 4: one text builder with indentation walks the registry and
// writes a module declaration per namespace, a typed signature per
// function, and an enum/type/class declaration per data type.
package declgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/registry"
)

// builder mirrors the line-buffered, indent-tracking source file writer
// used elsewhere in this tree: indent()/unindent() bump a level, line()
// prefixes it.
type builder struct {
	sb     strings.Builder
	indent int
}

func (b *builder) line(format string, args ...any) {
	b.sb.WriteString(strings.Repeat("  ", b.indent))
	fmt.Fprintf(&b.sb, format, args...)
	b.sb.WriteByte('\n')
}

func (b *builder) blank() { b.sb.WriteByte('\n') }

func (b *builder) in()  { b.indent++ }
func (b *builder) out() { b.indent-- }

// scriptName returns the user-set script-side name for t if commit's
// marshaller installation has run, falling back to the registry name —
// spec §4.7's "user-set script-type name takes priority" rule.
func scriptName(t *registry.Type) string {
	if t == nil {
		return "void"
	}
	if td := bridge.TypeDataOf(t); td != nil && td.ScriptName != "" {
		return td.ScriptName
	}
	return t.Name
}

// typeName implements spec §4.7's name-resolution table: pointer→pointee,
// function→arrow signature, array→ElementName[], zero-size/nil→void,
// everything else falls through to scriptName.
func typeName(t *registry.Type) string {
	switch {
	case t == nil:
		return "void"
	case t.Flags.Pointer:
		return typeName(t.PointerElem)
	case t.Flags.Function:
		return funcSignature(t.FuncArgs, t.FuncReturn)
	case t.ArrayElem != nil:
		return typeName(t.ArrayElem) + "[]"
	case t.IsVoid():
		return "void"
	default:
		return scriptName(t)
	}
}

func funcSignature(args []*registry.Type, ret *registry.Type) string {
	params := make([]string, len(args))
	for i, a := range args {
		params[i] = fmt.Sprintf("arg%d: %s", i, typeName(a))
	}
	return fmt.Sprintf("(%s) => %s", strings.Join(params, ", "), typeName(ret))
}

func fnSignature(fn *registry.Function) string {
	params := make([]string, len(fn.Args))
	for i, a := range fn.Args {
		params[i] = fmt.Sprintf("arg%d: %s", i, typeName(a))
	}
	ret := typeName(fn.Return)
	if fn.Async {
		ret = fmt.Sprintf("Promise<%s>", ret)
	}
	return fmt.Sprintf("(%s): %s", strings.Join(params, ", "), ret)
}

// writeEnum emits `enum Name { A = 1, B = 2 }`.
func writeEnum(b *builder, t *registry.Type) {
	b.line("export enum %s {", scriptName(t))
	b.in()
	for _, f := range t.EnumFields {
		b.line("%s = %d,", f.Name, f.Value)
	}
	b.out()
	b.line("}")
}

// isTrivialStruct mirrors marshal.isTrivialStruct without importing it
// (which would pull declgen into marshal's dependency cycle): trivially
// constructible/destructible with no declared constructors.
func isTrivialStruct(t *registry.Type) bool {
	return t.Flags.TriviallyConstructible && t.Flags.TriviallyDestructible && len(t.Constructors) == 0 && !t.Flags.Enum
}

func writeObjectLiteralType(b *builder, t *registry.Type) {
	b.line("export type %s = {", scriptName(t))
	b.in()
	for _, p := range t.Properties {
		if p.Kind != registry.PropField || p.Offset < 0 {
			continue
		}
		b.line("%s: %s,", p.Name, typeName(p.Type))
	}
	b.out()
	b.line("}")
}

func writeClass(b *builder, t *registry.Type) {
	b.line("export class %s {", scriptName(t))
	b.in()
	for _, p := range t.Properties {
		switch p.Kind {
		case registry.PropStaticField:
			ro := ""
			if !p.Writable {
				ro = "readonly "
			}
			b.line("static %s%s: %s;", ro, p.Name, typeName(p.Type))
		}
	}
	for _, p := range t.Properties {
		if p.Kind == registry.PropField && p.Offset >= 0 {
			ro := ""
			if !p.Writable {
				ro = "readonly "
			}
			b.line("%s%s: %s;", ro, p.Name, typeName(p.Type))
		}
	}
	for _, ctor := range t.Constructors {
		params := make([]string, len(ctor.Args))
		for i, a := range ctor.Args {
			params[i] = fmt.Sprintf("arg%d: %s", i, typeName(a))
		}
		b.line("constructor(%s);", strings.Join(params, ", "))
	}
	for _, p := range t.Properties {
		if p.Kind == registry.PropMethod {
			b.line("%s%s;", p.Name, fnSignature(p.Func))
		}
	}
	for _, p := range t.Properties {
		if p.Kind == registry.PropStaticMethod {
			b.line("static %s%s;", p.Name, fnSignature(p.Func))
		}
	}
	b.line("destroy(): void;")
	b.out()
	b.line("}")
}

func writeDataType(b *builder, t *registry.Type) {
	switch {
	case t.Flags.Enum:
		writeEnum(b, t)
	case isTrivialStruct(t):
		writeObjectLiteralType(b, t)
	case t.Flags.Primitive || t.Flags.Opaque:
		b.line("export type %s = number;", scriptName(t))
	default:
		writeClass(b, t)
	}
}

// referencedImports collects the distinct non-builtin type names a
// namespace's functions and values mention, for the module's import
// header — declared types living in other namespaces are assumed
// available as ambient globals, since this bridge installs exactly one
// flat declaration file rather than per-module type files.
func referencedImports(ns *registry.Namespace) []string {
	seen := map[string]bool{}
	var names []string
	add := func(t *registry.Type) {
		if t == nil {
			return
		}
		n := scriptName(t)
		if n == "" || n == "void" || n == "number" || n == "string" || n == "boolean" {
			return
		}
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, fn := range ns.Functions {
		add(fn.Return)
		for _, a := range fn.Args {
			add(a)
		}
	}
	for _, v := range ns.Values {
		add(v.Type)
	}
	sort.Strings(names)
	return names
}

func writeNamespace(b *builder, ns *registry.Namespace, isModule bool) {
	if isModule {
		b.line("declare module %q {", ns.Name)
		b.in()
		for _, imp := range referencedImports(ns) {
			b.line("import { %s } from \"tsbridge/core\";", imp)
		}
		if len(referencedImports(ns)) > 0 {
			b.blank()
		}
	}
	for _, t := range ns.Types {
		writeDataType(b, t)
		b.blank()
	}
	for _, fn := range ns.Functions {
		b.line("export function %s%s;", fn.Name, fnSignature(fn))
	}
	for _, v := range ns.Values {
		b.line("export const %s: %s;", v.Name, typeName(v.Type))
	}
	for _, child := range ns.Namespaces {
		writeNamespace(b, child, true)
	}
	if isModule {
		b.out()
		b.line("}")
	}
}

// coreBuiltins is the fixed preamble describing the intrinsics binding
// commit phase 3 always installs (spec §4.7 phase 3), written once at the
// top of every emitted file.
const coreBuiltins = `declare function setTimeout(fn: () => void, ms: number): number;
declare function setInterval(fn: () => void, ms: number): number;
declare function clearTimeout(id: number): void;
declare function clearInterval(id: number): void;

declare const process: {
  readonly env: Record<string, string>;
  cwd(): string;
};
`

// Emit walks reg's global namespace and returns the complete
// declaration-file text: core intrinsics, then the global namespace's
// types, functions and values, then one module block per nested
// namespace.
func Emit(reg *registry.Registry) string {
	b := &builder{}
	b.sb.WriteString(coreBuiltins)
	b.blank()
	writeNamespace(b, reg.Global(), false)
	return b.sb.String()
}
