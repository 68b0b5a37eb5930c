package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/obskey/internal/log"
)

var (
	// ErrAlreadyRegistered is returned when a combination is already bound,
	// by this process or by another application.
	ErrAlreadyRegistered = errors.New("hotkey already registered")
	// ErrUnknownID is returned when unregistering an id that is not bound.
	ErrUnknownID = errors.New("unknown hotkey id")
	// ErrManagerClosed is returned by Register after Close.
	ErrManagerClosed = errors.New("hotkey manager closed")
)

// eventBuffer bounds how many presses may queue while an execution runs.
const eventBuffer = 64

// Event is a single key press of a registered combination.
type Event struct {
	ID uint32
	At time.Time
}

// Backend binds key combinations at the OS level.
type Backend interface {
	Name() string
	Bind(d Descriptor) (Binding, error)
}

// Binding is one live OS registration.
type Binding interface {
	Keydown() <-chan struct{}
	Unbind() error
}

type entry struct {
	desc    Descriptor
	binding Binding
	stop    chan struct{}
}

// Manager registers descriptors with a Backend and delivers every key press
// of every binding on one channel.
type Manager struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	nextID  uint32
	entries map[uint32]*entry
	byDesc  map[Descriptor]uint32
	closed  bool

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a Manager on top of backend.
func NewManager(backend Backend) *Manager {
	return &Manager{
		backend: backend,
		logger:  log.WithComponent("hotkey").With("backend", backend.Name()),
		entries: make(map[uint32]*entry),
		byDesc:  make(map[Descriptor]uint32),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
}

// Register binds d and returns its id. Ids are unique for the lifetime of
// the Manager and never reused.
func (m *Manager) Register(d Descriptor) (uint32, error) {
	if d.IsZero() {
		return 0, fmt.Errorf("%w: no key", ErrInvalidSpec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrManagerClosed
	}
	if id, ok := m.byDesc[d]; ok {
		return 0, fmt.Errorf("%w: %s (id %d)", ErrAlreadyRegistered, d, id)
	}

	binding, err := m.backend.Bind(d)
	if err != nil {
		return 0, fmt.Errorf("register %s: %w", d, err)
	}

	m.nextID++
	id := m.nextID
	e := &entry{desc: d, binding: binding, stop: make(chan struct{})}
	m.entries[id] = e
	m.byDesc[d] = id

	m.wg.Add(1)
	go m.forward(id, e)

	m.logger.Debug("hotkey registered", "hotkey", d.String(), "id", id)
	return id, nil
}

// Unregister releases the binding with the given id.
func (m *Manager) Unregister(id uint32) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	delete(m.entries, id)
	delete(m.byDesc, e.desc)
	m.mu.Unlock()

	close(e.stop)
	if err := e.binding.Unbind(); err != nil {
		return fmt.Errorf("unregister %s: %w", e.desc, err)
	}
	m.logger.Debug("hotkey unregistered", "hotkey", e.desc.String(), "id", id)
	return nil
}

// Lookup returns the descriptor bound to id.
func (m *Manager) Lookup(id uint32) (Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Events returns the process-wide stream of key presses. The channel is
// closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Close releases every binding and closes the event channel.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ids := make([]uint32, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.Unregister(id); err != nil {
			errs = append(errs, err)
		}
	}

	close(m.done)
	m.wg.Wait()
	close(m.events)
	return errors.Join(errs...)
}

func (m *Manager) forward(id uint32, e *entry) {
	defer m.wg.Done()

	keydown := e.binding.Keydown()
	for {
		select {
		case <-e.stop:
			return
		case <-m.done:
			return
		case _, ok := <-keydown:
			if !ok {
				return
			}
			select {
			case m.events <- Event{ID: id, At: time.Now()}:
			case <-e.stop:
				return
			case <-m.done:
				return
			}
		}
	}
}
