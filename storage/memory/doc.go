// Package memory provides an in-memory implementation of the relay's storage interfaces.
//
// Store implements both storage.SessionStore and storage.ResultStore with two
// maps behind a single sync.RWMutex. TakeSession and TakeResult run under the
// write lock, which makes each registration observable by exactly one caller.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Optional expiry of unretrieved pull-mode results (SetResultTTL)
//   - Storage size gauges fed by atomic counters (SetInstrumentation)
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, _ := relay.NewServer(store, store, keys, config, logger)
package memory
