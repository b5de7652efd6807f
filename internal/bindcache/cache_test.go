package bindcache

import (
	"testing"

	"github.com/cryguy/tsbridge/internal/registry"
)

func TestStoreThenLookupHit(t *testing.T) {
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if err := c.Store("fp1", "declare const x: number;"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	decl, hit, err := c.Lookup("fp1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !hit {
		t.Fatalf("expected a cache hit")
	}
	if decl != "declare const x: number;" {
		t.Fatalf("unexpected declaration %q", decl)
	}
}

func TestLookupMissOnFingerprintChange(t *testing.T) {
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	c.Store("fp1", "declare const x: number;")

	_, hit, err := c.Lookup("fp2")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if hit {
		t.Fatalf("expected a cache miss for a changed fingerprint")
	}
}

func TestLookupMissOnColdCache(t *testing.T) {
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	_, hit, err := c.Lookup("anything")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if hit {
		t.Fatalf("expected a cache miss on an empty cache")
	}
}

func TestFingerprintStableAcrossRegistrationOrder(t *testing.T) {
	regA := registry.New()
	regA.Global().RegisterFunction(&registry.Function{Name: "a"})
	regA.Global().RegisterFunction(&registry.Function{Name: "b"})

	regB := registry.New()
	regB.Global().RegisterFunction(&registry.Function{Name: "b"})
	regB.Global().RegisterFunction(&registry.Function{Name: "a"})

	if Fingerprint(regA) != Fingerprint(regB) {
		t.Fatalf("expected fingerprint to be independent of registration order")
	}
}

func TestFingerprintChangesWhenRegistryChanges(t *testing.T) {
	regA := registry.New()
	regA.Global().RegisterFunction(&registry.Function{Name: "a"})

	regB := registry.New()
	regB.Global().RegisterFunction(&registry.Function{Name: "a"})
	regB.Global().RegisterFunction(&registry.Function{Name: "b"})

	if Fingerprint(regA) == Fingerprint(regB) {
		t.Fatalf("expected different fingerprints for different registries")
	}
}
