// Package testutil provides testing helpers for the relay: WebSocket dialing
// and frame assertions against httptest servers, a static key set, and
// polling for asynchronous conditions.
package testutil
