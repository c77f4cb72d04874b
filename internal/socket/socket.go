package socket

import (
	"errors"
	"net"
)

var (
	ErrConnect              = errors.New("socket: upstream connect failed")
	ErrTransportClosed      = errors.New("socket: transport closed")
	ErrUnsupportedOperation = errors.New("socket: unsupported operation")
	ErrDestinationUnset     = errors.New("socket: destination unset")
)

// Diagnostic kinds are logged and counted, never returned to callers.
const (
	DiagBufferBacklog     = "buffer_backlog"
	DiagProtocolAsymmetry = "protocol_asymmetry"
)

// DatagramSocket is the datagram view every bridge transport exposes to callers.
//
// SendTo enqueues all of payload or none of it; delivery is best effort.
// Read copies at most len(buf) bytes and returns the source address only when at
// least one byte was produced. A non-nil error always comes with n == 0.
type DatagramSocket interface {
	SendTo(payload []byte, dest net.Addr) error
	Read(buf []byte) (int, net.Addr, error)
}
