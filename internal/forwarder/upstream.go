package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/simbridge/internal/socket"
	"github.com/rs/zerolog/log"
)

// MaxDatagramBytes is the largest UDP payload over IPv4.
const MaxDatagramBytes = 65507

// pollWait is the shortest receive wait; a deadline already in the past never reads.
const pollWait = time.Millisecond

var (
	ErrDatagramTooLarge = errors.New("forwarder: datagram too large")
	ErrReplyTimeout     = errors.New("forwarder: upstream reply wait elapsed")
)

// Upstream is the single connected UDP socket to the simulation control endpoint.
// The peer address is resolved once at Dial and never again.
type Upstream struct {
	conn   *net.UDPConn
	remote *net.UDPAddr

	recvMu sync.Mutex
	closed atomic.Bool
	once   sync.Once
	err    error
}

// Dial resolves addr and connects the upstream socket. Failures wrap socket.ErrConnect.
func Dial(ctx context.Context, addr string) (*Upstream, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("%w: upstream address required", socket.ErrConnect)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %q: %w", socket.ErrConnect, addr, err)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: dial %q: unexpected conn %T", socket.ErrConnect, addr, conn)
	}
	remote, _ := udpConn.RemoteAddr().(*net.UDPAddr)

	log.Info().
		Str("upstream", remote.String()).
		Str("local", udpConn.LocalAddr().String()).
		Msg("upstream connected")
	return &Upstream{conn: udpConn, remote: remote}, nil
}

// RemoteAddr returns the resolved upstream peer.
func (u *Upstream) RemoteAddr() *net.UDPAddr {
	return u.remote
}

func (u *Upstream) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Send writes payload as one datagram. It either writes every byte or returns an error.
func (u *Upstream) Send(payload []byte) (int, error) {
	if u.closed.Load() {
		return 0, socket.ErrTransportClosed
	}
	if len(payload) > MaxDatagramBytes {
		return 0, fmt.Errorf("%w: %d bytes", ErrDatagramTooLarge, len(payload))
	}
	n, err := u.conn.Write(payload)
	if err != nil {
		if u.closed.Load() || errors.Is(err, net.ErrClosed) {
			return 0, socket.ErrTransportClosed
		}
		return 0, fmt.Errorf("forwarder: send upstream %s: %w", u.remote, err)
	}
	if n != len(payload) {
		return 0, fmt.Errorf("forwarder: send upstream %s: %w", u.remote, io.ErrShortWrite)
	}
	return n, nil
}

// Receive waits at most wait for one datagram from the upstream peer. Receivers are
// serialized so deadlines never interleave. A wait below pollWait polls.
func (u *Upstream) Receive(buf []byte, wait time.Duration) (int, error) {
	if u.closed.Load() {
		return 0, socket.ErrTransportClosed
	}
	if wait < pollWait {
		wait = pollWait
	}

	u.recvMu.Lock()
	defer u.recvMu.Unlock()
	if err := u.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return 0, socket.ErrTransportClosed
	}
	n, err := u.conn.Read(buf)
	if err != nil {
		switch {
		case u.closed.Load() || errors.Is(err, net.ErrClosed):
			return 0, socket.ErrTransportClosed
		case errors.Is(err, os.ErrDeadlineExceeded):
			return 0, ErrReplyTimeout
		default:
			return 0, fmt.Errorf("forwarder: receive upstream %s: %w", u.remote, err)
		}
	}
	return n, nil
}

// Close releases the socket and unblocks any in-flight Receive. Safe to repeat.
func (u *Upstream) Close() error {
	u.once.Do(func() {
		u.closed.Store(true)
		u.err = u.conn.Close()
		log.Info().Str("upstream", u.remote.String()).Msg("upstream closed")
	})
	return u.err
}

func (u *Upstream) Closed() bool {
	return u.closed.Load()
}
