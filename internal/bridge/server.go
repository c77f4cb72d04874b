package bridge

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/danmuck/simbridge/internal/acceptor"
	"github.com/danmuck/simbridge/internal/forwarder"
	"github.com/danmuck/simbridge/internal/socket"
	"github.com/danmuck/simbridge/internal/wsbridge"
	"github.com/rs/zerolog/log"
)

// Server owns one upstream connection and exactly one inbound transport.
type Server struct {
	cfg     Config
	started time.Time

	upstream *forwarder.Upstream
	upSock   *forwarder.UpstreamSocket

	// exactly one of these is set, per cfg.Mode
	transport *wsbridge.Transport
	service   *forwarder.Service

	closeOnce sync.Once
	closeErr  error
}

// Status is a point-in-time view of a Server for heartbeats.
type Status struct {
	NodeID   string
	Mode     Mode
	State    acceptor.State
	Addr     string
	Upstream string
	Uptime   time.Duration

	Peers     int
	Buffered  int
	Appended  uint64
	Consumed  uint64
	Forwarded uint64
	Failed    uint64
	Replies   uint64
}

// New dials the upstream once, then starts the transport selected by cfg.Mode.
// When any step fails, everything already acquired is released and no Server is
// returned.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NodeID == "" {
		cfg.NodeID = DefaultConfig().NodeID
	}

	ctx := context.Background()
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	up, err := forwarder.Dial(ctx, cfg.UpstreamAddr)
	if err != nil {
		log.Error().
			Str("node", cfg.NodeID).
			Str("upstream", cfg.UpstreamAddr).
			Err(err).
			Msg("upstream connect failed")
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		started:  time.Now(),
		upstream: up,
		upSock:   forwarder.NewUpstreamSocket(up),
	}
	switch cfg.Mode {
	case ModeMessage:
		s.transport, err = wsbridge.Listen(cfg.messageConfig())
	case ModeRequest:
		s.service, err = forwarder.NewService(cfg.requestConfig(), up)
		if err == nil {
			err = s.service.Start()
		}
	}
	if err != nil {
		_ = up.Close()
		log.Error().
			Str("node", cfg.NodeID).
			Str("mode", string(cfg.Mode)).
			Str("addr", cfg.ListenAddr).
			Err(err).
			Msg("bridge transport failed to start")
		return nil, err
	}

	log.Info().
		Str("node", cfg.NodeID).
		Str("mode", string(cfg.Mode)).
		Str("addr", s.Addr().String()).
		Str("upstream", up.RemoteAddr().String()).
		Msg("bridge server started")
	return s, nil
}

func (s *Server) Config() Config {
	return s.cfg
}

// Socket returns the inbound side as a DatagramSocket: the message transport, or
// the upstream socket in request mode.
func (s *Server) Socket() socket.DatagramSocket {
	if s.transport != nil {
		return s.transport
	}
	return s.upSock
}

func (s *Server) Upstream() *forwarder.UpstreamSocket {
	return s.upSock
}

// Transport returns the message transport, or nil in request mode.
func (s *Server) Transport() *wsbridge.Transport {
	return s.transport
}

// Forwarder returns the request transport, or nil in message mode.
func (s *Server) Forwarder() *forwarder.Service {
	return s.service
}

func (s *Server) Addr() net.Addr {
	if s.transport != nil {
		return s.transport.Addr()
	}
	return s.service.Acceptor().Addr()
}

func (s *Server) State() acceptor.State {
	if s.transport != nil {
		return s.transport.State()
	}
	return s.service.Acceptor().State()
}

// Done is closed once the transport's accept goroutine has exited.
func (s *Server) Done() <-chan struct{} {
	if s.transport != nil {
		return s.transport.Done()
	}
	return s.service.Acceptor().Done()
}

func (s *Server) Status() Status {
	st := Status{
		NodeID:   s.cfg.NodeID,
		Mode:     s.cfg.Mode,
		State:    s.State(),
		Addr:     s.Addr().String(),
		Upstream: s.upSock.RemoteAddr().String(),
		Uptime:   time.Since(s.started),
	}
	if s.transport != nil {
		bs := s.transport.Stats()
		st.Peers = s.transport.Peers()
		st.Buffered = bs.Buffered
		st.Appended = bs.Appended
		st.Consumed = bs.Consumed
	}
	if s.service != nil {
		fs := s.service.Stats()
		st.Forwarded = fs.Forwarded
		st.Failed = fs.Failed
		st.Replies = fs.Replies
	}
	return st
}

// Close stops the transport (signal, join, release) and then closes the upstream.
// Safe to call repeatedly and from any goroutine.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.transport != nil {
			errs = append(errs, s.transport.Close())
		}
		if s.service != nil {
			errs = append(errs, s.service.Close())
		}
		errs = append(errs, s.upstream.Close())
		s.closeErr = errors.Join(errs...)
		log.Info().
			Str("node", s.cfg.NodeID).
			Str("mode", string(s.cfg.Mode)).
			Msg("bridge server closed")
	})
	return s.closeErr
}
