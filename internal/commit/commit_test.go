package commit

import (
	"testing"

	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/jsengine/fake"
	"github.com/cryguy/tsbridge/internal/registry"
)

func i32Type() *registry.Type {
	return &registry.Type{Name: "i32", Size: 4, Flags: registry.Flags{Primitive: true, Integral: true, TriviallyConstructible: true, TriviallyDestructible: true}}
}

func newEnv(eng jsengine.Engine, heap *bridge.Heap) Env {
	return Env{Engine: eng, Heap: heap}
}

// TestCommitInstallsFreeFunctionOnGlobal exercises scenario A's shape: a
// free function taking and returning a trivial struct, installed on the
// global scope by Commit and callable afterward.
func TestCommitInstallsFreeFunctionOnGlobal(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	heap := bridge.NewHeap()
	i32 := i32Type()

	point := &registry.Type{
		Name: "Point", Size: 8,
		Flags: registry.Flags{TriviallyConstructible: true, TriviallyDestructible: true},
		Properties: []*registry.Property{
			{Name: "x", Offset: 0, Type: i32, Kind: registry.PropField, Readable: true, Writable: true},
			{Name: "y", Offset: 4, Type: i32, Kind: registry.PropField, Readable: true, Writable: true},
		},
	}

	plus := &registry.Function{
		Name: "plus", Return: point, Args: []*registry.Type{point, point},
		Call: func(self uintptr, args []uintptr) (uintptr, error) {
			ax, _ := heap.ReadBytes(args[0], 4)
			ay, _ := heap.ReadBytes(args[0]+4, 4)
			bx, _ := heap.ReadBytes(args[1], 4)
			by, _ := heap.ReadBytes(args[1]+4, 4)
			sum := func(a, b []byte) int32 {
				av := int32(a[0]) | int32(a[1])<<8 | int32(a[2])<<16 | int32(a[3])<<24
				bv := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24
				return av + bv
			}
			rx, ry := sum(ax, bx), sum(ay, by)
			out := heap.Alloc(8)
			heap.WriteBytes(out, []byte{byte(rx), byte(rx >> 8), byte(rx >> 16), byte(rx >> 24)})
			heap.WriteBytes(out+4, []byte{byte(ry), byte(ry >> 8), byte(ry >> 16), byte(ry >> 24)})
			return out, nil
		},
	}

	reg := registry.New()
	reg.Global().RegisterType(i32)
	reg.Global().RegisterType(point)
	reg.Global().RegisterFunction(plus)

	result, err := Commit(jc, reg, newEnv(eng, heap))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if result.Declaration == "" {
		t.Fatalf("expected non-empty declaration text")
	}

	fnVal, err := jc.Global().Get("plus")
	if err != nil {
		t.Fatalf("Get(plus): %v", err)
	}

	a, _ := jc.NewObject()
	a.Set("x", jc.NewNumber(3))
	a.Set("y", jc.NewNumber(5))
	b, _ := jc.NewObject()
	b.Set("x", jc.NewNumber(7))
	b.Set("y", jc.NewNumber(9))

	out, err := jc.CallFunction(fnVal, jc.Undefined(), []jsengine.Value{a, b})
	if err != nil {
		t.Fatalf("calling plus: %v", err)
	}
	outObj, ok := out.(jsengine.Obj)
	if !ok {
		t.Fatalf("expected an object result")
	}
	xv, _ := outObj.Get("x")
	yv, _ := outObj.Get("y")
	if xv.Float64() != 10 || yv.Float64() != 14 {
		t.Fatalf("expected {10, 14}, got {%v, %v}", xv.Float64(), yv.Float64())
	}
}

// TestCommitInstallsNamespaceAsModule exercises a namespace becoming a
// nested module object reachable from the global scope.
func TestCommitInstallsNamespaceAsModule(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	heap := bridge.NewHeap()
	i32 := i32Type()

	reg := registry.New()
	mathNS := reg.Global().RegisterNamespace("math")
	mathNS.RegisterType(i32)
	square := &registry.Function{
		Name: "square", Return: i32, Args: []*registry.Type{i32},
		Call: func(self uintptr, args []uintptr) (uintptr, error) {
			buf, _ := heap.ReadBytes(args[0], 4)
			v := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16 | int32(buf[3])<<24
			out := heap.Alloc(4)
			r := v * v
			heap.WriteBytes(out, []byte{byte(r), byte(r >> 8), byte(r >> 16), byte(r >> 24)})
			return out, nil
		},
	}
	mathNS.RegisterFunction(square)

	if _, err := Commit(jc, reg, newEnv(eng, heap)); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	modVal, err := jc.Global().Get("math")
	if err != nil {
		t.Fatalf("Get(math): %v", err)
	}
	mod, ok := modVal.(jsengine.Obj)
	if !ok {
		t.Fatalf("expected math to be an object")
	}
	fnVal, err := mod.Get("square")
	if err != nil {
		t.Fatalf("Get(square): %v", err)
	}
	out, err := jc.CallFunction(fnVal, jc.Undefined(), []jsengine.Value{jc.NewNumber(6)})
	if err != nil {
		t.Fatalf("calling square: %v", err)
	}
	if out.Float64() != 36 {
		t.Fatalf("expected 36, got %v", out.Float64())
	}
}

// TestCommitInstallsClassWithDestroy exercises scenario B: a non-trivial
// class whose static surface carries a "new" constructor method, whose
// instances carry destroy().
func TestCommitInstallsClassWithDestroy(t *testing.T) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	heap := bridge.NewHeap()

	destroyed := 0
	handle := &registry.Type{
		Name: "Handle", Size: 8,
		Constructors: []*registry.Function{{
			Name: "Handle", Args: nil,
			Call: func(self uintptr, args []uintptr) (uintptr, error) { return 0, nil },
		}},
		Destructor: &registry.Function{
			Name: "~Handle",
			Call: func(self uintptr, args []uintptr) (uintptr, error) {
				destroyed++
				return 0, nil
			},
		},
	}

	reg := registry.New()
	reg.Global().RegisterType(handle)

	if _, err := Commit(jc, reg, newEnv(eng, heap)); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	staticVal, err := jc.Global().Get("Handle")
	if err != nil {
		t.Fatalf("Get(Handle): %v", err)
	}
	static, ok := staticVal.(jsengine.Obj)
	if !ok {
		t.Fatalf("expected Handle to be an object")
	}
	ctorVal, err := static.Get("new")
	if err != nil {
		t.Fatalf("Get(new): %v", err)
	}

	instance, err := jc.CallFunction(ctorVal, jc.Undefined(), nil)
	if err != nil {
		t.Fatalf("new Handle(): %v", err)
	}
	obj, ok := instance.(jsengine.Obj)
	if !ok {
		t.Fatalf("expected constructed instance to be an object")
	}

	destroyVal, err := obj.Get("destroy")
	if err != nil {
		t.Fatalf("Get(destroy): %v", err)
	}
	if _, err := jc.CallFunction(destroyVal, obj, nil); err != nil {
		t.Fatalf("destroy(): %v", err)
	}
	if destroyed != 1 {
		t.Fatalf("expected destructor to run exactly once, ran %d times", destroyed)
	}
	if obj.GetInternalField(bridge.FieldHostPtr) != bridge.Tombstone {
		t.Fatalf("expected hostPtr slot tombstoned after destroy")
	}
}
