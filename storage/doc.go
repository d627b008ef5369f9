// Package storage defines the registries the relay correlates through: live
// WebSocket sessions keyed by OAuth state, and (pull mode) codes awaiting
// retrieval.
//
// Implementations are provided in subpackages:
//   - storage/memory: the in-process store used by the relay
//   - storage/mock: function-field mocks for unit tests
//
// Sessions are never persisted. A restart drops every registration, and
// clients reconnect with a fresh state.
package storage
