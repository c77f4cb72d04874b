// Package acceptor owns listener and goroutine lifecycle for bridge transports.
//
// Lifecycle order:
// - stopped -> starting -> listening -> stopping -> stopped
//
// - stop is signal -> join -> release, never reordered.
//
// - the signal step closes tracked peers and the served listener; release only
// closes a listener that was bound but never served.
//
// Closing sockets is the only cancellation mechanism for in-flight waits.
package acceptor
