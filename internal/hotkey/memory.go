package hotkey

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotBound is returned by MemoryBackend.Press for combinations nobody bound.
var ErrNotBound = errors.New("hotkey not bound")

// MemoryBackend binds combinations in process memory only. Presses are
// simulated with Press. It backs headless runs and tests.
type MemoryBackend struct {
	mu       sync.Mutex
	bound    map[Descriptor]*memoryBinding
	occupied map[Descriptor]bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		bound:    make(map[Descriptor]*memoryBinding),
		occupied: make(map[Descriptor]bool),
	}
}

func (b *MemoryBackend) Name() string { return "memory" }

// Bind registers d. Combinations marked with Occupy are refused.
func (b *MemoryBackend) Bind(d Descriptor) (Binding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.occupied[d] {
		return nil, fmt.Errorf("%w: %s is bound by another application", ErrAlreadyRegistered, d)
	}
	if _, ok := b.bound[d]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, d)
	}

	mb := &memoryBinding{backend: b, desc: d, keydown: make(chan struct{}, 16)}
	b.bound[d] = mb
	return mb, nil
}

// Occupy marks d as held by another application.
func (b *MemoryBackend) Occupy(d Descriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.occupied[d] = true
}

// Press simulates one key press of d.
func (b *MemoryBackend) Press(d Descriptor) error {
	b.mu.Lock()
	mb, ok := b.bound[d]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBound, d)
	}
	mb.keydown <- struct{}{}
	return nil
}

// Bound lists the currently bound combinations in canonical string order.
func (b *MemoryBackend) Bound() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.bound))
	for d := range b.bound {
		out = append(out, d.String())
	}
	sort.Strings(out)
	return out
}

type memoryBinding struct {
	backend *MemoryBackend
	desc    Descriptor
	keydown chan struct{}
}

func (mb *memoryBinding) Keydown() <-chan struct{} { return mb.keydown }

func (mb *memoryBinding) Unbind() error {
	mb.backend.mu.Lock()
	defer mb.backend.mu.Unlock()
	if mb.backend.bound[mb.desc] == mb {
		delete(mb.backend.bound, mb.desc)
	}
	return nil
}
