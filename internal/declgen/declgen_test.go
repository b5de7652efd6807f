package declgen

import (
	"strings"
	"testing"

	"github.com/cryguy/tsbridge/internal/registry"
)

func TestEmitWritesCoreIntrinsicsOnce(t *testing.T) {
	reg := registry.New()
	out := Emit(reg)
	if strings.Count(out, "declare function setTimeout") != 1 {
		t.Fatalf("expected setTimeout declared exactly once, got:\n%s", out)
	}
	if !strings.Contains(out, "process.cwd") && !strings.Contains(out, "cwd()") {
		t.Fatalf("expected a process.cwd() declaration, got:\n%s", out)
	}
}

func TestEmitNamespaceBecomesModule(t *testing.T) {
	reg := registry.New()
	ns := reg.Global().RegisterNamespace("fs")
	i32 := &registry.Type{Name: "i32", Size: 4, Flags: registry.Flags{Primitive: true, Integral: true}}
	ns.RegisterFunction(&registry.Function{Name: "readSize", Return: i32})

	out := Emit(reg)
	if !strings.Contains(out, `declare module "fs"`) {
		t.Fatalf("expected a declare module block for fs, got:\n%s", out)
	}
	if !strings.Contains(out, "export function readSize") {
		t.Fatalf("expected readSize exported from fs module, got:\n%s", out)
	}
}

func TestEmitEnum(t *testing.T) {
	reg := registry.New()
	color := &registry.Type{
		Name:  "Color",
		Flags: registry.Flags{Enum: true},
		EnumFields: []*registry.EnumField{
			{Name: "Red", Value: 0},
			{Name: "Green", Value: 1},
		},
	}
	reg.Global().RegisterType(color)

	out := Emit(reg)
	if !strings.Contains(out, "export enum Color") {
		t.Fatalf("expected an enum declaration, got:\n%s", out)
	}
	if !strings.Contains(out, "Red = 0") || !strings.Contains(out, "Green = 1") {
		t.Fatalf("expected enum fields with their values, got:\n%s", out)
	}
}

func TestEmitTrivialStructAsObjectLiteralType(t *testing.T) {
	reg := registry.New()
	i32 := &registry.Type{Name: "i32", Size: 4, Flags: registry.Flags{Primitive: true, Integral: true}}
	point := &registry.Type{
		Name: "Point", Size: 8,
		Flags: registry.Flags{TriviallyConstructible: true, TriviallyDestructible: true},
		Properties: []*registry.Property{
			{Name: "x", Offset: 0, Type: i32, Kind: registry.PropField, Readable: true, Writable: true},
			{Name: "y", Offset: 4, Type: i32, Kind: registry.PropField, Readable: true, Writable: true},
		},
	}
	reg.Global().RegisterType(point)

	out := Emit(reg)
	if !strings.Contains(out, "export type Point = {") {
		t.Fatalf("expected an object-literal type for Point, got:\n%s", out)
	}
	if !strings.Contains(out, "x: i32") || !strings.Contains(out, "y: i32") {
		t.Fatalf("expected x/y fields, got:\n%s", out)
	}
}

func TestEmitClassHasDestroy(t *testing.T) {
	reg := registry.New()
	handle := &registry.Type{Name: "Handle", Size: 8}
	reg.Global().RegisterType(handle)

	out := Emit(reg)
	if !strings.Contains(out, "export class Handle") {
		t.Fatalf("expected a class declaration, got:\n%s", out)
	}
	if !strings.Contains(out, "destroy(): void;") {
		t.Fatalf("expected a destroy() method, got:\n%s", out)
	}
}
