// Package socket holds the WebSocket side of the relay: the close codes the
// server emits, the Conn capability over gorilla/websocket, the first-message
// auth handshake and the per-session keepalive loop.
//
// A session goes through three phases. Authenticate reads exactly one frame
// and either returns the auth message or closes the connection with a
// specific code. The server then registers the Conn under the state it
// carried. Keepalive.Run owns the connection from there until it ends,
// pinging while the registration is still this Conn's and releasing it on
// every exit path.
package socket
