// Package forwarder owns the request/response bridge transport and the upstream
// UDP connection.
//
// Ownership boundary:
// - POST /Get and POST /Set exchanges
//
// - the connected upstream socket (dial once, never re-resolved)
//
// - the UpstreamSocket datagram adapter
//
// Exchange contract:
// - the request body is forwarded verbatim as one datagram
//
// - Get first drops replies left queued by earlier exchanges, then waits briefly
// for one upstream reply, logs its size and drops it
//
// - the response is always the fixed acknowledgement, whatever happened upstream
package forwarder
