package bridge

import "sync"

// Tombstone is the distinguished sentinel pointer value written into a
// wrapper's hostPtr slot once it has been explicitly destroyed.
const Tombstone = ^uintptr(0)

type block struct {
	base uintptr
	size uintptr
	buf  []byte
}

// Heap is a virtual flat address space standing in for the native process
// heap: every non-trivial type's host object manager and every call
// context carve allocations out of one, addressed by a uintptr "pointer"
// that is a handle into this space rather than a real process address.
// This keeps the bridge free of unsafe.Pointer arithmetic while preserving
// the offset-based property access the marshallers rely on.
type Heap struct {
	mu     sync.Mutex
	blocks []*block
	next   uintptr
}

// NewHeap returns an empty heap. Addresses start above zero so that zero
// can serve as the null pointer value marshallers compare against.
func NewHeap() *Heap {
	return &Heap{next: 0x1000}
}

// Alloc reserves size bytes, zero-initialized, and returns its address.
func (h *Heap) Alloc(size uintptr) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if size == 0 {
		size = 1
	}
	base := h.next
	h.next += size
	h.blocks = append(h.blocks, &block{base: base, size: size, buf: make([]byte, size)})
	return base
}

// Free releases the block at ptr. Freeing an address Alloc never returned
// is a no-op; callers that need free-of-unknown-pointer diagnostics check
// the bool return.
func (h *Heap) Free(ptr uintptr) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.blocks {
		if b.base == ptr {
			h.blocks = append(h.blocks[:i], h.blocks[i+1:]...)
			return true
		}
	}
	return false
}

func (h *Heap) resolve(ptr uintptr) (*block, uintptr, bool) {
	for _, b := range h.blocks {
		if ptr >= b.base && ptr-b.base < b.size {
			return b, ptr - b.base, true
		}
	}
	return nil, 0, false
}

// ReadBytes copies n bytes starting at ptr. ok is false if the range isn't
// fully contained in one live block.
func (h *Heap) ReadBytes(ptr uintptr, n uintptr) (out []byte, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, off, found := h.resolve(ptr)
	if !found || off+n > b.size {
		return nil, false
	}
	out = make([]byte, n)
	copy(out, b.buf[off:off+n])
	return out, true
}

// WriteBytes copies data into the block at ptr.
func (h *Heap) WriteBytes(ptr uintptr, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, off, found := h.resolve(ptr)
	if !found || off+uintptr(len(data)) > b.size {
		return false
	}
	copy(b.buf[off:], data)
	return true
}

// BlockSize returns the size of the block whose base address is ptr. Used
// by variable-length marshallers (string, byte buffer) that don't know the
// stored length ahead of a read.
func (h *Heap) BlockSize(ptr uintptr) (uintptr, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range h.blocks {
		if b.base == ptr {
			return b.size, true
		}
	}
	return 0, false
}

// Zero fills n bytes starting at ptr with zero.
func (h *Heap) Zero(ptr uintptr, n uintptr) bool {
	return h.WriteBytes(ptr, make([]byte, n))
}
