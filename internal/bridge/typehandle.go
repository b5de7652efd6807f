package bridge

import (
	"sync"

	"github.com/cryguy/tsbridge/internal/registry"
)

// Wrapper internal field slots, per spec §6's bit-level layout contract.
const (
	FieldHostPtr     = 0
	FieldTypeDesc    = 1
	FieldExternalOwn = 2
)

var (
	handleMu   sync.Mutex
	handleOf   = map[*registry.Type]uintptr{}
	typeOf     = map[uintptr]*registry.Type{}
	nextHandle = uintptr(1)
)

// TypeHandle returns a stable, process-lifetime uintptr standing in for t,
// so a *registry.Type can travel through a wrapper's internal field slot
// (which only holds a uintptr, not an arbitrary Go pointer) without unsafe.
func TypeHandle(t *registry.Type) uintptr {
	handleMu.Lock()
	defer handleMu.Unlock()
	if h, ok := handleOf[t]; ok {
		return h
	}
	h := nextHandle
	nextHandle++
	handleOf[t] = h
	typeOf[h] = t
	return h
}

// TypeFromHandle reverses TypeHandle.
func TypeFromHandle(h uintptr) *registry.Type {
	handleMu.Lock()
	defer handleMu.Unlock()
	return typeOf[h]
}

// UpcastOffset walks declared's base list looking for target, returning the
// byte offset to apply to a declared-typed pointer to read it as target, and
// whether target is declared itself or reachable through Bases at all.
func UpcastOffset(declared, target *registry.Type) (int64, bool) {
	if declared == nil || target == nil {
		return 0, false
	}
	if declared == target {
		return 0, true
	}
	for _, b := range declared.Bases {
		if b.Type == target {
			return b.Offset, true
		}
	}
	return 0, false
}
