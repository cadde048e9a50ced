package memory

import "sync"

// Observer is notified after every working-memory mutation.
type Observer func(key string, value any)

// WorkingMemory is the agent-owned in-RAM scratch state. It is mutated only
// through these setters, which also notify registered observers.
type WorkingMemory struct {
	mu        sync.RWMutex
	values    map[string]any
	observers []Observer
}

// NewWorkingMemory creates an empty working memory.
func NewWorkingMemory() *WorkingMemory {
	return &WorkingMemory{values: make(map[string]any)}
}

// Set stores a value and notifies observers.
func (w *WorkingMemory) Set(key string, value any) {
	w.mu.Lock()
	w.values[key] = value
	observers := append([]Observer(nil), w.observers...)
	w.mu.Unlock()

	for _, observe := range observers {
		observe(key, value)
	}
}

// Get returns a value and whether it was present.
func (w *WorkingMemory) Get(key string) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	value, ok := w.values[key]
	return value, ok
}

// GetString returns the value for key if it is a string.
func (w *WorkingMemory) GetString(key string) (string, bool) {
	if value, ok := w.Get(key); ok {
		if s, isString := value.(string); isString {
			return s, true
		}
	}
	return "", false
}

// Delete removes a key and notifies observers with a nil value.
func (w *WorkingMemory) Delete(key string) {
	w.mu.Lock()
	delete(w.values, key)
	observers := append([]Observer(nil), w.observers...)
	w.mu.Unlock()

	for _, observe := range observers {
		observe(key, nil)
	}
}

// Observe registers an observer for subsequent mutations.
func (w *WorkingMemory) Observe(observer Observer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, observer)
}

// Snapshot returns a copy of the current state.
func (w *WorkingMemory) Snapshot() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snapshot := make(map[string]any, len(w.values))
	for k, v := range w.values {
		snapshot[k] = v
	}
	return snapshot
}

// Len returns the number of stored keys.
func (w *WorkingMemory) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.values)
}
