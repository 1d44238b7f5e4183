// Package transport provides the channel handles the session manager owns.
//
// A Conn carries whole envelopes in both directions. Exactly one goroutine
// calls Receive and sends are serialized by the Conn itself. A Receive error
// is the channel-closed signal; io.EOF means the peer closed cleanly.
//
// Dialers:
//   - exec: spawn the native helper and frame over its stdin/stdout
//   - unix, tcp: frame over a socket
//   - ws: one envelope per WebSocket message
//   - pipe: in-process peer used by tests
package transport
