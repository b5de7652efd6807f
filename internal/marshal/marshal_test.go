package marshal

import (
	"testing"

	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/callback"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/jsengine/fake"
	"github.com/cryguy/tsbridge/internal/registry"
)

func newTestEnv() (Env, jsengine.Engine, jsengine.Ctx, *bridge.Heap) {
	eng := fake.New()
	jc, _ := eng.NewContext()
	heap := bridge.NewHeap()
	return Env{Engine: eng, Heap: heap, Callbacks: callback.New()}, eng, jc, heap
}

func i32Type() *registry.Type {
	return &registry.Type{Name: "i32", Size: 4, Flags: registry.Flags{Primitive: true, Integral: true, TriviallyConstructible: true, TriviallyDestructible: true}}
}

func TestPrimitiveRoundTrip(t *testing.T) {
	env, _, jc, heap := newTestEnv()
	i32 := i32Type()
	Install(i32, env)
	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	ptr, err := bridge.TypeDataOf(i32).Marshaller.FromScript(cc, jc, jc.NewNumber(-7))
	if err != nil {
		t.Fatalf("FromScript: %v", err)
	}
	v, err := bridge.TypeDataOf(i32).Marshaller.ToScript(cc, jc, ptr, false, false)
	if err != nil {
		t.Fatalf("ToScript: %v", err)
	}
	if v.Float64() != -7 {
		t.Fatalf("expected -7, got %v", v.Float64())
	}
}

func TestPrimitiveTruncationWraps(t *testing.T) {
	env, _, jc, heap := newTestEnv()
	u8 := &registry.Type{Name: "u8", Size: 1, Flags: registry.Flags{Primitive: true, Integral: true, Unsigned: true}}
	Install(u8, env)
	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	ptr, _ := bridge.TypeDataOf(u8).Marshaller.FromScript(cc, jc, jc.NewNumber(257))
	v, _ := bridge.TypeDataOf(u8).Marshaller.ToScript(cc, jc, ptr, false, false)
	if v.Float64() != 1 {
		t.Fatalf("expected 257 to wrap to 1 for a u8, got %v", v.Float64())
	}
}

func TestStringRoundTrip(t *testing.T) {
	env, _, jc, heap := newTestEnv()
	Install(registry.StringType, env)
	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	ptr, err := bridge.TypeDataOf(registry.StringType).Marshaller.FromScript(cc, jc, jc.NewString("héllo"))
	if err != nil {
		t.Fatalf("FromScript: %v", err)
	}
	v, err := bridge.TypeDataOf(registry.StringType).Marshaller.ToScript(cc, jc, ptr, false, false)
	if err != nil {
		t.Fatalf("ToScript: %v", err)
	}
	if v.String() != "héllo" {
		t.Fatalf("expected héllo, got %q", v.String())
	}
}

func TestByteBufferRoundTrip(t *testing.T) {
	env, _, jc, heap := newTestEnv()
	Install(registry.BufferType, env)
	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	orig, _ := jc.NewArrayBuffer([]byte{1, 2, 3, 4, 5})
	ptr, err := bridge.TypeDataOf(registry.BufferType).Marshaller.FromScript(cc, jc, orig)
	if err != nil {
		t.Fatalf("FromScript: %v", err)
	}
	v, err := bridge.TypeDataOf(registry.BufferType).Marshaller.ToScript(cc, jc, ptr, false, false)
	if err != nil {
		t.Fatalf("ToScript: %v", err)
	}
	got, _ := jc.ArrayBufferBytes(v)
	if len(got) != 5 || got[4] != 5 {
		t.Fatalf("unexpected bytes: %v", got)
	}
}

func TestTrivialStructRoundTripScenarioA(t *testing.T) {
	env, _, jc, heap := newTestEnv()
	i32 := i32Type()
	Install(i32, env)
	point := &registry.Type{
		Name: "Point", Size: 8,
		Flags: registry.Flags{TriviallyConstructible: true, TriviallyDestructible: true},
		Properties: []*registry.Property{
			{Name: "x", Offset: 0, Type: i32, Readable: true, Writable: true, Kind: registry.PropField},
			{Name: "y", Offset: 4, Type: i32, Readable: true, Writable: true, Kind: registry.PropField},
		},
	}
	Install(point, env)
	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	in, _ := jc.NewObject()
	in.Set("x", jc.NewNumber(3))
	in.Set("y", jc.NewNumber(5))

	td := bridge.TypeDataOf(point)
	if !td.Marshaller.CanAccept(cc, jc, in) {
		t.Fatalf("expected CanAccept true for a fully-populated struct literal")
	}
	ptr, err := td.Marshaller.FromScript(cc, jc, in)
	if err != nil {
		t.Fatalf("FromScript: %v", err)
	}

	// simulate plus(a, b) -> Point, returning {x: a.x+b.x, y: a.y+b.y}
	xBuf, _ := heap.ReadBytes(ptr, 4)
	yBuf, _ := heap.ReadBytes(ptr+4, 4)
	x := int32(xBuf[0]) | int32(xBuf[1])<<8 | int32(xBuf[2])<<16 | int32(xBuf[3])<<24
	y := int32(yBuf[0]) | int32(yBuf[1])<<8 | int32(yBuf[2])<<16 | int32(yBuf[3])<<24
	heap.WriteBytes(ptr, []byte{byte(x + 7), 0, 0, 0})
	heap.WriteBytes(ptr+4, []byte{byte(y + 9), 0, 0, 0})

	out, err := td.Marshaller.ToScript(cc, jc, ptr, false, true)
	if err != nil {
		t.Fatalf("ToScript: %v", err)
	}
	outObj := out.(jsengine.Obj)
	ox, _ := outObj.Get("x")
	oy, _ := outObj.Get("y")
	if ox.Float64() != 10 || oy.Float64() != 14 {
		t.Fatalf("expected {10,14}, got {%v,%v}", ox.Float64(), oy.Float64())
	}
}

func TestTrivialStructMissingFieldsZeroFilled(t *testing.T) {
	env, _, jc, heap := newTestEnv()
	i32 := i32Type()
	Install(i32, env)
	point := &registry.Type{
		Name: "Point", Size: 8,
		Flags: registry.Flags{TriviallyConstructible: true, TriviallyDestructible: true},
		Properties: []*registry.Property{
			{Name: "x", Offset: 0, Type: i32, Readable: true, Writable: true, Kind: registry.PropField},
			{Name: "y", Offset: 4, Type: i32, Readable: true, Writable: true, Kind: registry.PropField},
		},
	}
	Install(point, env)
	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	in, _ := jc.NewObject()
	in.Set("x", jc.NewNumber(3))

	td := bridge.TypeDataOf(point)
	ptr, err := td.Marshaller.FromScript(cc, jc, in)
	if err != nil {
		t.Fatalf("FromScript: %v", err)
	}
	yBuf, _ := heap.ReadBytes(ptr+4, 4)
	for _, b := range yBuf {
		if b != 0 {
			t.Fatalf("expected missing field y to be zero-filled, got %v", yBuf)
		}
	}
}

func TestArrayRoundTripScenarioD(t *testing.T) {
	env, _, jc, heap := newTestEnv()
	i32 := i32Type()
	Install(i32, env)
	point := &registry.Type{
		Name: "Point", Size: 8,
		Flags: registry.Flags{TriviallyConstructible: true, TriviallyDestructible: true},
		Properties: []*registry.Property{
			{Name: "x", Offset: 0, Type: i32, Readable: true, Writable: true, Kind: registry.PropField},
			{Name: "y", Offset: 4, Type: i32, Readable: true, Writable: true, Kind: registry.PropField},
		},
	}
	Install(point, env)
	arrType := &registry.Type{Name: "Array<Point>", ArrayElem: point}
	Install(arrType, env)
	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	a1, _ := jc.NewObject()
	a1.Set("x", jc.NewNumber(1))
	a1.Set("y", jc.NewNumber(2))
	a2, _ := jc.NewObject()
	a2.Set("x", jc.NewNumber(3))
	a2.Set("y", jc.NewNumber(4))
	in, _ := jc.NewArray(2)
	in.SetIndex(0, a1)
	in.SetIndex(1, a2)

	td := bridge.TypeDataOf(arrType)
	ptr, err := td.Marshaller.FromScript(cc, jc, in)
	if err != nil {
		t.Fatalf("FromScript: %v", err)
	}
	size, _ := heap.BlockSize(ptr)
	if size != 16 {
		t.Fatalf("expected 16-byte backing store for 2 Points, got %d", size)
	}

	out, err := td.Marshaller.ToScript(cc, jc, ptr, false, false)
	if err != nil {
		t.Fatalf("ToScript: %v", err)
	}
	outArr := out.(jsengine.Arr)
	if outArr.Len() != 2 {
		t.Fatalf("expected 2 elements, got %d", outArr.Len())
	}
	e0, _ := outArr.GetIndex(0)
	e0x, _ := e0.(jsengine.Obj).Get("x")
	if e0x.Float64() != 1 {
		t.Fatalf("expected element 0 x==1, got %v", e0x.Float64())
	}
}

func TestPointerNullRoundTrip(t *testing.T) {
	env, _, jc, heap := newTestEnv()
	i32 := i32Type()
	Install(i32, env)
	ptrType := &registry.Type{Name: "*i32", Size: 8, Flags: registry.Flags{Pointer: true}, PointerElem: i32}
	Install(ptrType, env)
	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	td := bridge.TypeDataOf(ptrType)
	ptr, err := td.Marshaller.FromScript(cc, jc, jc.Null())
	if err != nil {
		t.Fatalf("FromScript: %v", err)
	}
	v, err := td.Marshaller.ToScript(cc, jc, ptr, false, false)
	if err != nil {
		t.Fatalf("ToScript: %v", err)
	}
	if !v.IsNullOrUndefined() {
		t.Fatalf("expected null pointer to round-trip to null")
	}
}

func TestNonTrivialObjectIdentityScenarioB(t *testing.T) {
	env, eng, jc, heap := newTestEnv()
	destroyed := 0
	handle := &registry.Type{
		Name: "Handle", Size: 4,
		Destructor: &registry.Function{Call: func(self uintptr, args []uintptr) (uintptr, error) {
			destroyed++
			return 0, nil
		}},
	}
	td := Install(handle, env)
	tmpl, _ := eng.NewObjTemplate()
	tmpl.SetInternalFieldCount(3)
	td.Template = tmpl

	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	hostPtr := td.Manager.Alloc(mustWrapper(t, tmpl, jc))
	// identity: two ToScript calls over the same pointer return the same instance
	w1, err := td.Marshaller.ToScript(cc, jc, hostPtr, false, false)
	if err != nil {
		t.Fatalf("ToScript: %v", err)
	}
	w2, err := td.Marshaller.ToScript(cc, jc, hostPtr, false, false)
	if err != nil {
		t.Fatalf("ToScript: %v", err)
	}
	if w1 != w2 {
		t.Fatalf("expected identity: repeated ToScript over a live pointer returns the same wrapper")
	}
}

// TestExternallyOwnedWrapperIsNotGCFreed pins the regression where an
// in-place (externally-owned) wrap — e.g. a pointer return, or a field
// access into a struct the host still owns — got tracked in the object
// manager's map like a script-constructed instance, so collecting the
// wrapper ran the destructor and freed host memory the host never handed
// off.
func TestExternallyOwnedWrapperIsNotGCFreed(t *testing.T) {
	env, eng, jc, heap := newTestEnv()
	destroyed := 0
	handle := &registry.Type{
		Name: "Handle", Size: 4,
		Destructor: &registry.Function{Call: func(self uintptr, args []uintptr) (uintptr, error) {
			destroyed++
			return 0, nil
		}},
	}
	td := Install(handle, env)
	tmpl, _ := eng.NewObjTemplate()
	tmpl.SetInternalFieldCount(3)
	td.Template = tmpl

	cc := bridge.NewCallContext(heap)
	defer cc.Drop()

	// Host-owned storage the bridge never allocated and must never free,
	// e.g. a field inside a struct the host still owns.
	hostOwnedPtr := heap.Alloc(4)

	wrapper, err := td.Marshaller.ToScript(cc, jc, hostOwnedPtr, false, true)
	if err != nil {
		t.Fatalf("ToScript: %v", err)
	}
	if _, ok := td.Manager.GetTargetIfMapped(hostOwnedPtr); ok {
		t.Fatalf("expected an externally-owned wrap not to be tracked in the manager's map")
	}

	eng.(*fake.Engine).Collect(wrapper.(jsengine.Obj))

	if destroyed != 0 {
		t.Fatalf("expected the destructor never to run for an externally-owned wrapper, ran %d times", destroyed)
	}
	if _, ok := heap.ReadBytes(hostOwnedPtr, 4); !ok {
		t.Fatalf("expected the host-owned block to still be allocated after GC")
	}
}

func mustWrapper(t *testing.T, tmpl jsengine.ObjTemplate, jc jsengine.Ctx) jsengine.Obj {
	t.Helper()
	obj, err := tmpl.NewInstance(jc)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	return obj
}
