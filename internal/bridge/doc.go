// Package bridge owns the bridge server lifecycle.
//
// Ownership boundary:
// - the one upstream connection, dialed exactly once at startup
//
// - the one inbound transport selected by Mode
//
// - the standalone runtime (heartbeat and message relay)
//
// Lifecycle order:
// - dial upstream -> bind -> listen
//
// - close: stop accepting -> join workers -> release listener and buffer -> close upstream
//
// A failed startup releases everything it acquired and returns no Server.
package bridge
