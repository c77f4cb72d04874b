package forwarder

import (
	"errors"
	"net"

	"github.com/danmuck/simbridge/internal/socket"
)

// UpstreamSocket exposes the connected upstream peer as a DatagramSocket.
type UpstreamSocket struct {
	up *Upstream
}

var _ socket.DatagramSocket = (*UpstreamSocket)(nil)

func NewUpstreamSocket(up *Upstream) *UpstreamSocket {
	return &UpstreamSocket{up: up}
}

// SendTo writes payload to the connected peer. dest must be set but is otherwise
// ignored: the socket only ever talks to the address resolved at Dial.
func (s *UpstreamSocket) SendTo(payload []byte, dest net.Addr) error {
	if s.up.Closed() {
		return socket.ErrTransportClosed
	}
	if dest == nil {
		return socket.ErrDestinationUnset
	}
	_, err := s.up.Send(payload)
	return err
}

// Read polls for one upstream datagram without blocking the caller.
// A datagram larger than buf is truncated to len(buf).
func (s *UpstreamSocket) Read(buf []byte) (int, net.Addr, error) {
	if len(buf) == 0 {
		if s.up.Closed() {
			return 0, nil, socket.ErrTransportClosed
		}
		return 0, nil, nil
	}
	n, err := s.up.Receive(buf, 0)
	if err != nil {
		if errors.Is(err, ErrReplyTimeout) {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, nil
	}
	return n, s.up.RemoteAddr(), nil
}

// RemoteAddr returns the upstream peer address, usable as a SendTo destination.
func (s *UpstreamSocket) RemoteAddr() net.Addr {
	return s.up.RemoteAddr()
}
