// Package wsbridge owns the message-based bridge transport.
//
// Ownership boundary:
// - WebSocket accept and per-peer read loops
//
// - the shared receive buffer and its accounting
//
// Inbound payloads from every peer are concatenated into one buffer. Message
// boundaries are not preserved: a short Read splits a message and a later Read may
// return its remainder joined with newer payloads.
//
// SendTo is reserved and always fails with socket.ErrUnsupportedOperation.
package wsbridge
