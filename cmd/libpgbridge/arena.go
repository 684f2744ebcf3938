package main

import (
	"sync"
	"unsafe"

	"github.com/santif/pgbridge/handle"
)

// arena tracks the C memory handed out for buffers.
// Row item copies belong to their row and error messages to their error;
// both are freed once the owning handle is gone.
type arena struct {
	mu     sync.Mutex
	rows   map[handle.Token][]unsafe.Pointer
	errors map[handle.Token]unsafe.Pointer
	free   func(unsafe.Pointer)
}

func newArena(free func(unsafe.Pointer)) *arena {
	return &arena{
		rows:   make(map[handle.Token][]unsafe.Pointer),
		errors: make(map[handle.Token]unsafe.Pointer),
		free:   free,
	}
}

func (a *arena) addRow(row handle.Token, p unsafe.Pointer) {
	if p == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows[row] = append(a.rows[row], p)
}

// errorMessage returns the copy already made for tok, or stores the one alloc returns
func (a *arena) errorMessage(tok handle.Token, alloc func() unsafe.Pointer) unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.errors[tok]; ok {
		return p
	}
	p := alloc()
	if p != nil {
		a.errors[tok] = p
	}
	return p
}

func (a *arena) freeError(tok handle.Token) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.errors[tok]; ok {
		a.free(p)
		delete(a.errors, tok)
	}
}

// sweep frees the copies of every row for which alive is false
func (a *arena) sweep(alive func(handle.Token) bool) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	freed := 0
	for row, ptrs := range a.rows {
		if alive(row) {
			continue
		}
		for _, p := range ptrs {
			a.free(p)
			freed++
		}
		delete(a.rows, row)
	}
	return freed
}

// reset frees everything
func (a *arena) reset() {
	a.sweep(func(handle.Token) bool { return false })

	a.mu.Lock()
	defer a.mu.Unlock()
	for tok, p := range a.errors {
		a.free(p)
		delete(a.errors, tok)
	}
}
