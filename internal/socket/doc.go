// Package socket owns the datagram capability shared by bridge transports.
//
// Ownership boundary:
// - DatagramSocket contract (SendTo/Read)
//
// - transport error taxonomy
//
// - diagnostic kinds used in logs and metrics
//
// Implementations live with their transports:
//
// - wsbridge.Transport (message transport, SendTo unsupported)
//
// - forwarder.UpstreamSocket (connected upstream UDP peer)
package socket
