package bridge

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/simbridge/internal/forwarder"
	"github.com/danmuck/simbridge/internal/socket"
	"github.com/rs/zerolog/log"
)

var (
	ErrServiceStarted    = errors.New("bridge: service already started")
	ErrServiceNotStarted = errors.New("bridge: service not started")
	ErrTransportStopped  = errors.New("bridge: transport stopped unexpectedly")
)

// Service runs a bridge Server as a standalone process.
type Service struct {
	cfg ServiceConfig

	mu     sync.RWMutex
	server *Server

	relayed      atomic.Uint64
	relayedBytes atomic.Uint64
	relayErrors  atomic.Uint64
}

// RelayStats counts message-mode relay activity.
type RelayStats struct {
	Datagrams uint64
	Bytes     uint64
	Errors    uint64
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	if cfg.RelayBufferBytes <= 0 {
		cfg.RelayBufferBytes = forwarder.MaxDatagramBytes
	}
	return &Service{cfg: cfg}
}

// Run blocks until SIGINT or SIGTERM, then shuts the server down.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext starts the server and serves until ctx is done.
func (s *Service) RunContext(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Start validates the config and builds the Server. It does not block.
func (s *Service) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return ErrServiceStarted
	}
	srv, err := New(s.cfg.Bridge)
	if err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}
	s.server = srv
	return nil
}

// Serve runs the heartbeat and relay loops until ctx is done or the transport
// stops on its own. The Server is closed before Serve returns.
func (s *Service) Serve(ctx context.Context) error {
	srv := s.Server()
	if srv == nil {
		return ErrServiceNotStarted
	}
	defer srv.Close()

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	var relay <-chan time.Time
	var buf []byte
	if srv.Transport() != nil && s.cfg.RelayInterval > 0 {
		t := time.NewTicker(s.cfg.RelayInterval)
		defer t.Stop()
		relay = t.C
		buf = make([]byte, s.cfg.RelayBufferBytes)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("node", srv.cfg.NodeID).Msg("bridge service shutdown")
			return nil
		case <-srv.Done():
			if err := srv.Close(); err != nil {
				return fmt.Errorf("%w: %w", ErrTransportStopped, err)
			}
			return ErrTransportStopped
		case <-relay:
			s.relayOnce(srv, buf)
		case <-heartbeat.C:
			st := srv.Status()
			rs := s.RelayStats()
			log.Info().
				Str("node", st.NodeID).
				Str("mode", string(st.Mode)).
				Str("state", st.State.String()).
				Int("peers", st.Peers).
				Int("buffered", st.Buffered).
				Uint64("forwarded", st.Forwarded).
				Uint64("failed", st.Failed).
				Uint64("relayed", rs.Datagrams).
				Dur("uptime", st.Uptime).
				Msg("bridge heartbeat")
		}
	}
}

// relayOnce drains one read from the message transport and sends it upstream as
// one datagram.
func (s *Service) relayOnce(srv *Server, buf []byte) {
	n, from, err := srv.Socket().Read(buf)
	if err != nil {
		if !errors.Is(err, socket.ErrTransportClosed) {
			s.relayErrors.Add(1)
			log.Warn().Str("node", srv.cfg.NodeID).Err(err).Msg("relay read failed")
		}
		return
	}
	if n == 0 {
		return
	}
	up := srv.Upstream()
	if err := up.SendTo(buf[:n], up.RemoteAddr()); err != nil {
		s.relayErrors.Add(1)
		log.Warn().
			Str("node", srv.cfg.NodeID).
			Int("bytes", n).
			Err(err).
			Msg("relay upstream send failed")
		return
	}
	s.relayed.Add(1)
	s.relayedBytes.Add(uint64(n))
	log.Debug().
		Str("node", srv.cfg.NodeID).
		Str("from", from.String()).
		Int("bytes", n).
		Msg("relayed to upstream")
}

// Server returns the running Server, or nil before Start.
func (s *Service) Server() *Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

func (s *Service) RelayStats() RelayStats {
	return RelayStats{
		Datagrams: s.relayed.Load(),
		Bytes:     s.relayedBytes.Load(),
		Errors:    s.relayErrors.Load(),
	}
}
