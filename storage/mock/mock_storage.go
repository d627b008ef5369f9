// Package mock provides mock implementations of storage interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/oauth-relay/storage"
)

// MockSessionStore is a mock implementation of SessionStore for testing.
// The default funcs behave like a simple map; override any of them to inject failures.
type MockSessionStore struct {
	mu           sync.Mutex
	sessions     map[string]storage.Sink
	RegisterFunc func(state string, sink storage.Sink) (bool, error)
	TakeFunc     func(state string) (storage.Sink, error)
	GetFunc      func(state string) (storage.Sink, error)
	ReleaseFunc  func(state string, sink storage.Sink) bool
	callCounts   map[string]int
	callCountsMu sync.Mutex
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	m := &MockSessionStore{
		sessions:   make(map[string]storage.Sink),
		callCounts: make(map[string]int),
	}

	// Set default implementations
	m.RegisterFunc = func(state string, sink storage.Sink) (bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, replaced := m.sessions[state]
		m.sessions[state] = sink
		return replaced, nil
	}

	m.TakeFunc = func(state string) (storage.Sink, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		sink, ok := m.sessions[state]
		if !ok {
			return nil, storage.ErrSessionNotFound
		}
		delete(m.sessions, state)
		return sink, nil
	}

	m.GetFunc = func(state string) (storage.Sink, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		sink, ok := m.sessions[state]
		if !ok {
			return nil, storage.ErrSessionNotFound
		}
		return sink, nil
	}

	m.ReleaseFunc = func(state string, sink storage.Sink) bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if current, ok := m.sessions[state]; ok && current == sink {
			delete(m.sessions, state)
			return true
		}
		return false
	}

	return m
}

func (m *MockSessionStore) count(name string) {
	m.callCountsMu.Lock()
	defer m.callCountsMu.Unlock()
	m.callCounts[name]++
}

// CallCount returns how often the named method was called
func (m *MockSessionStore) CallCount(name string) int {
	m.callCountsMu.Lock()
	defer m.callCountsMu.Unlock()
	return m.callCounts[name]
}

// RegisterSession binds state to sink
func (m *MockSessionStore) RegisterSession(_ context.Context, state string, sink storage.Sink) (bool, error) {
	m.count("RegisterSession")
	return m.RegisterFunc(state, sink)
}

// TakeSession removes and returns the session for state
func (m *MockSessionStore) TakeSession(_ context.Context, state string) (storage.Sink, error) {
	m.count("TakeSession")
	return m.TakeFunc(state)
}

// GetSession returns the session for state
func (m *MockSessionStore) GetSession(_ context.Context, state string) (storage.Sink, error) {
	m.count("GetSession")
	return m.GetFunc(state)
}

// ReleaseSession removes state if it still maps to sink
func (m *MockSessionStore) ReleaseSession(_ context.Context, state string, sink storage.Sink) bool {
	m.count("ReleaseSession")
	return m.ReleaseFunc(state, sink)
}

// SessionCount returns the number of sessions in the default backing map
func (m *MockSessionStore) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MockResultStore is a mock implementation of ResultStore for testing
type MockResultStore struct {
	mu             sync.Mutex
	results        map[string]string
	SaveResultFunc func(state, code string) error
	TakeResultFunc func(state string) (string, error)
}

// NewMockResultStore creates a new mock result store
func NewMockResultStore() *MockResultStore {
	m := &MockResultStore{
		results: make(map[string]string),
	}

	m.SaveResultFunc = func(state, code string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.results[state] = code
		return nil
	}

	m.TakeResultFunc = func(state string) (string, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		code, ok := m.results[state]
		if !ok {
			return "", storage.ErrResultNotFound
		}
		delete(m.results, state)
		return code, nil
	}

	return m
}

// SaveResult stores code under state
func (m *MockResultStore) SaveResult(_ context.Context, state, code string) error {
	return m.SaveResultFunc(state, code)
}

// TakeResult removes and returns the code for state
func (m *MockResultStore) TakeResult(_ context.Context, state string) (string, error) {
	return m.TakeResultFunc(state)
}

// ResultCount returns the number of results in the default backing map
func (m *MockResultStore) ResultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

// Compile-time interface checks
var (
	_ storage.SessionStore = (*MockSessionStore)(nil)
	_ storage.ResultStore  = (*MockResultStore)(nil)
)
