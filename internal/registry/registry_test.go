package registry

import "testing"

func TestRegisterNamespaceIsIdempotent(t *testing.T) {
	r := New()
	a := r.Global().RegisterNamespace("fs")
	b := r.Global().RegisterNamespace("fs")
	if a != b {
		t.Fatalf("expected RegisterNamespace to return the same instance for repeated names")
	}
	if len(r.Global().Namespaces) != 1 {
		t.Fatalf("expected exactly one child namespace, got %d", len(r.Global().Namespaces))
	}
}

func TestUserDataSetTwicePanics(t *testing.T) {
	ty := &Type{Name: "Point"}
	ty.SetUserData(1)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on second SetUserData call")
		}
	}()
	ty.SetUserData(2)
}

func TestRegisterFunctionAppends(t *testing.T) {
	ns := &Namespace{Name: "math"}
	ns.RegisterFunction(&Function{Name: "max"})
	ns.RegisterFunction(&Function{Name: "min"})
	if len(ns.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(ns.Functions))
	}
}
