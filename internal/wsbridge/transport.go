package wsbridge

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/danmuck/simbridge/internal/acceptor"
	"github.com/danmuck/simbridge/internal/observability"
	"github.com/danmuck/simbridge/internal/socket"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Transport is the message-based bridge transport. Every WebSocket peer appends
// into one shared ReceiveBuffer; Read drains it as a byte stream.
type Transport struct {
	cfg      Config
	buf      *ReceiveBuffer
	acc      *acceptor.Acceptor
	upgrader websocket.Upgrader
	closed   atomic.Bool
}

var _ socket.DatagramSocket = (*Transport)(nil)

// Listen binds cfg.ListenAddr and starts accepting WebSocket peers on a background
// goroutine. It returns once the transport is Listening.
func Listen(cfg Config) (*Transport, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	observability.RegisterMetrics()

	acc, err := acceptor.Bind("wsbridge", cfg.ListenAddr, cfg.Timeouts)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		cfg: cfg,
		buf: NewReceiveBuffer(),
		acc: acc,
	}
	t.upgrader = websocket.Upgrader{
		HandshakeTimeout: acc.Timeouts().HandshakeTimeout,
		CheckOrigin:      t.checkOrigin,
	}
	acc.Serve(http.HandlerFunc(t.handleUpgrade))

	log.Info().
		Str("node", cfg.NodeID).
		Str("addr", acc.Addr().String()).
		Int64("max_message_bytes", cfg.MaxMessageBytes).
		Msg("message transport listening")
	return t, nil
}

// Read drains up to len(buf) bytes from the shared backlog. It never blocks; an
// empty backlog yields 0 bytes and a nil address.
func (t *Transport) Read(buf []byte) (int, net.Addr, error) {
	if t.closed.Load() {
		return 0, nil, socket.ErrTransportClosed
	}
	n, from, remaining := t.buf.Drain(buf)
	if n == 0 {
		return 0, nil, nil
	}
	observability.SetBufferedBytes(t.cfg.NodeID, remaining)
	if remaining > 0 {
		observability.RecordDiagnostic(t.cfg.NodeID, socket.DiagBufferBacklog)
		log.Warn().
			Str("node", t.cfg.NodeID).
			Str("diag", socket.DiagBufferBacklog).
			Int("read", n).
			Int("remaining", remaining).
			Msg("receive buffer still holds bytes after read")
	}
	return n, from, nil
}

// SendTo is reserved; the message transport has no outbound path.
func (t *Transport) SendTo(payload []byte, dest net.Addr) error {
	if t.closed.Load() {
		return socket.ErrTransportClosed
	}
	return fmt.Errorf("wsbridge: send %d bytes to %v: %w", len(payload), dest, socket.ErrUnsupportedOperation)
}

// Close stops accepting, closes every peer, joins all goroutines, then releases the
// listener and the backlog. Safe to call repeatedly and from any goroutine.
func (t *Transport) Close() error {
	first := t.closed.CompareAndSwap(false, true)
	err := t.acc.Stop()
	if first {
		if dropped := t.buf.Release(); dropped > 0 {
			log.Warn().
				Str("node", t.cfg.NodeID).
				Int("dropped", dropped).
				Msg("message transport closed with unread bytes")
		}
		observability.SetBufferedBytes(t.cfg.NodeID, 0)
		observability.SetMessagePeers(t.cfg.NodeID, 0)
	}
	return err
}

func (t *Transport) Addr() net.Addr {
	return t.acc.Addr()
}

func (t *Transport) State() acceptor.State {
	return t.acc.State()
}

func (t *Transport) Stats() BufferStats {
	return t.buf.Stats()
}

// Peers returns the number of connected WebSocket peers.
func (t *Transport) Peers() int {
	return t.acc.Tracked()
}

// Done is closed when the accept goroutine exits.
func (t *Transport) Done() <-chan struct{} {
	return t.acc.Done()
}

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().
			Str("node", t.cfg.NodeID).
			Str("remote", r.RemoteAddr).
			Err(err).
			Msg("websocket upgrade failed")
		return
	}
	release, ok := t.acc.Track(conn)
	if !ok {
		_ = conn.Close()
		return
	}
	remote := conn.RemoteAddr()
	defer func() {
		release()
		peers := t.acc.Tracked()
		observability.SetMessagePeers(t.cfg.NodeID, peers)
		log.Info().
			Str("node", t.cfg.NodeID).
			Str("remote", remote.String()).
			Int("peers", peers).
			Msg("message peer disconnected")
	}()

	peers := t.acc.Tracked()
	observability.SetMessagePeers(t.cfg.NodeID, peers)
	log.Info().
		Str("node", t.cfg.NodeID).
		Str("remote", remote.String()).
		Int("peers", peers).
		Msg("message peer connected")

	t.readLoop(conn, remote)
}

// readLoop appends whole inbound messages until the peer or Close ends the connection.
func (t *Transport) readLoop(conn *websocket.Conn, remote net.Addr) {
	defer conn.Close()
	if t.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(t.cfg.MaxMessageBytes)
	}
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !t.closed.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().
					Str("node", t.cfg.NodeID).
					Str("remote", remote.String()).
					Err(err).
					Msg("message peer read failed")
			}
			return
		}
		t.buf.Append(payload, remote)
		observability.RecordMessage(t.cfg.NodeID, len(payload))
		observability.SetBufferedBytes(t.cfg.NodeID, t.buf.Len())
		log.Trace().
			Str("node", t.cfg.NodeID).
			Str("remote", remote.String()).
			Int("bytes", len(payload)).
			Msg("message appended")
	}
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if len(t.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range t.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) || allowed == "*" {
			return true
		}
	}
	return false
}
