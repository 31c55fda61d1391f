package resource

import (
	"sync"
)

// UnifiedTable stores resources of every kind behind generation-checked
// handles.
type UnifiedTable struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new unified table with a LocalBackend.
func NewTable() *UnifiedTable {
	return &UnifiedTable{
		backend: NewLocalBackend(),
	}
}

// Insert adds a value and returns its handle.
// It returns 0 once the table is closed or full.
func (t *UnifiedTable) Insert(kind Kind, value any) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(kind, value)
	if err != nil {
		return 0
	}
	return handle
}

// Get retrieves a value by handle.
func (t *UnifiedTable) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it matches the expected kind.
func (t *UnifiedTable) GetTyped(handle Handle, kind Kind) (any, bool) {
	actual, ok := t.backend.Kind(handle)
	if !ok || actual != kind {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Kind returns the kind of a live handle.
func (t *UnifiedTable) Kind(handle Handle) (Kind, bool) {
	return t.backend.Kind(handle)
}

// Valid reports whether handle refers to a live resource.
func (t *UnifiedTable) Valid(handle Handle) bool {
	_, ok := t.backend.Kind(handle)
	return ok
}

// Remove drops a resource and returns (value, true) if found.
func (t *UnifiedTable) Remove(handle Handle) (any, bool) {
	kind, _ := t.backend.Kind(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return value, true
}

// Subscribe adds an observer notified after every Remove. Observers may
// remove other resources from the same table.
func (t *UnifiedTable) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of active resources.
func (t *UnifiedTable) Len() int {
	return t.backend.Len()
}

// Each iterates over all active resources of every kind.
func (t *UnifiedTable) Each(fn func(Handle, Kind, any) bool) {
	t.backend.Each(fn)
}

// Close releases all resources and stops accepting operations.
func (t *UnifiedTable) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

func (t *UnifiedTable) notify(e Event) {
	t.obsMu.RLock()
	observers := t.observers
	t.obsMu.RUnlock()
	for _, o := range observers {
		o.OnResourceDropped(e)
	}
}

// Typed is a view of a UnifiedTable restricted to one kind and value type.
type Typed[T any] struct {
	table *UnifiedTable
	kind  Kind
}

// NewTyped returns a typed view over table for kind.
func NewTyped[T any](table *UnifiedTable, kind Kind) *Typed[T] {
	return &Typed[T]{table: table, kind: kind}
}

// Insert adds a value and returns its handle.
func (t *Typed[T]) Insert(value T) Handle {
	return t.table.Insert(t.kind, value)
}

// Get retrieves a value by handle.
func (t *Typed[T]) Get(handle Handle) (T, bool) {
	var zero T
	v, ok := t.table.GetTyped(handle, t.kind)
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	if !ok {
		return zero, false
	}
	return tv, true
}

// Remove drops a resource and returns (value, true) if found.
// Handles of another kind are left untouched.
func (t *Typed[T]) Remove(handle Handle) (T, bool) {
	var zero T
	if k, ok := t.table.Kind(handle); !ok || k != t.kind {
		return zero, false
	}
	v, ok := t.table.Remove(handle)
	if !ok {
		return zero, false
	}
	tv, _ := v.(T)
	return tv, true
}

// Len returns the number of active resources of this kind.
func (t *Typed[T]) Len() int {
	n := 0
	t.table.Each(func(_ Handle, k Kind, _ any) bool {
		if k == t.kind {
			n++
		}
		return true
	})
	return n
}
