package handle

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrInvalidHandle is returned for the nil token or a token whose slot was never allocated
	ErrInvalidHandle = errors.New("handle: invalid token")

	// ErrStaleHandle is returned when the token's slot was released or reused
	ErrStaleHandle = errors.New("handle: token already released")

	// ErrTypeMismatch is returned when a token is used as a different type than it was wrapped with
	ErrTypeMismatch = errors.New("handle: type mismatch")
)

// Token is an opaque handle handed across the boundary.
// The high 32 bits carry the slot generation, the low 32 bits the slot index plus one.
type Token uint64

// Nil is the zero token. It never refers to a live value.
const Nil Token = 0

func newToken(index uint32, gen uint32) Token {
	return Token(uint64(gen)<<32 | uint64(index+1))
}

func (t Token) index() (uint32, bool) {
	low := uint32(t)
	if low == 0 {
		return 0, false
	}
	return low - 1, true
}

func (t Token) generation() uint32 {
	return uint32(t >> 32)
}

// String renders the token as slot/generation for logs
func (t Token) String() string {
	idx, ok := t.index()
	if !ok {
		return "nil"
	}
	return fmt.Sprintf("%d/%d", idx, t.generation())
}

type slot struct {
	gen   uint32
	live  bool
	kind  reflect.Type
	value any
}

// Table owns every value reachable through a token.
// Operations on different tokens may run concurrently.
type Table struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	live  int
}

// NewTable creates an empty handle table
func NewTable() *Table {
	return &Table{}
}

func (t *Table) insert(kind reflect.Type, v any) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot{gen: 1})
		idx = uint32(len(t.slots) - 1)
	}

	s := &t.slots[idx]
	s.live = true
	s.kind = kind
	s.value = v
	t.live++

	return newToken(idx, s.gen)
}

// lookup returns the slot for tok. Callers must hold t.mu.
func (t *Table) lookup(tok Token, kind reflect.Type) (*slot, error) {
	idx, ok := tok.index()
	if !ok || int(idx) >= len(t.slots) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, tok)
	}

	s := &t.slots[idx]
	if !s.live || s.gen != tok.generation() {
		return nil, fmt.Errorf("%w: %s", ErrStaleHandle, tok)
	}
	if s.kind != kind {
		return nil, fmt.Errorf("%w: %s holds %s, not %s", ErrTypeMismatch, tok, s.kind, kind)
	}

	return s, nil
}

func (t *Table) get(tok Token, kind reflect.Type) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(tok, kind)
	if err != nil {
		return nil, err
	}
	return s.value, nil
}

func (t *Table) remove(tok Token, kind reflect.Type) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(tok, kind)
	if err != nil {
		return nil, err
	}

	v := s.value
	s.live = false
	s.value = nil
	s.kind = nil
	// Generation 0 is never handed out so a wrapped-around counter can't revive old tokens.
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}

	idx, _ := tok.index()
	t.free = append(t.free, idx)
	t.live--

	return v, nil
}

// Kind returns the type name stored behind tok, or "" when tok is not live
func (t *Table) Kind(tok Token) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := tok.index()
	if !ok || int(idx) >= len(t.slots) {
		return ""
	}
	s := t.slots[idx]
	if !s.live || s.gen != tok.generation() {
		return ""
	}
	return s.kind.String()
}

// Len returns the number of live handles
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Kinds returns the number of live handles per stored type name
func (t *Table) Kinds() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[string]int)
	for _, s := range t.slots {
		if s.live {
			counts[s.kind.String()]++
		}
	}
	return counts
}

// Wrap moves v into the table and returns its token
func Wrap[T any](t *Table, v T) Token {
	return t.insert(reflect.TypeFor[T](), v)
}

// Unwrap returns the value behind tok, checking that it was wrapped as a T
func Unwrap[T any](t *Table, tok Token) (T, error) {
	var zero T
	v, err := t.get(tok, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Release removes the value behind tok and returns it.
// After Release every use of tok, including a second Release, fails with ErrStaleHandle.
func Release[T any](t *Table, tok Token) (T, error) {
	var zero T
	v, err := t.remove(tok, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Each calls fn for every live value of type T.
// fn runs without the table lock held, on a snapshot taken at call time.
func Each[T any](t *Table, fn func(Token, T)) {
	kind := reflect.TypeFor[T]()

	t.mu.Lock()
	toks := make([]Token, 0)
	vals := make([]T, 0)
	for i, s := range t.slots {
		if s.live && s.kind == kind {
			v, _ := s.value.(T)
			toks = append(toks, newToken(uint32(i), s.gen))
			vals = append(vals, v)
		}
	}
	t.mu.Unlock()

	for i, tok := range toks {
		fn(tok, vals[i])
	}
}
