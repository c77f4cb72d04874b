package forwarder

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/simbridge/internal/acceptor"
	"github.com/danmuck/simbridge/internal/observability"
	"github.com/danmuck/simbridge/internal/socket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Op names the two exposed exchange kinds.
type Op string

const (
	OpGet Op = "get"
	OpSet Op = "set"
)

// ForwardHeader reports the upstream send outcome to the one exchange it belongs to.
const ForwardHeader = "X-Bridge-Forward"

var ErrServiceStarted = errors.New("forwarder: service already started")

// Service is the request/response transport. Every exchange body goes upstream as
// one datagram and the caller always receives the fixed acknowledgement.
type Service struct {
	cfg      Config
	upstream *Upstream
	router   *gin.Engine
	started  time.Time

	mu  sync.Mutex
	acc *acceptor.Acceptor

	forwarded atomic.Uint64
	failed    atomic.Uint64
	replies   atomic.Uint64
	stale     atomic.Uint64
}

// Stats counts exchanges since the service was built.
type Stats struct {
	Forwarded uint64 `json:"forwarded"`
	Failed    uint64 `json:"failed"`
	Replies   uint64 `json:"replies_observed"`
	Stale     uint64 `json:"stale_replies_dropped"`
}

// NewService builds the router around an already connected upstream. Nothing listens
// until Start. The upstream stays owned by the caller, also on error.
func NewService(cfg Config, upstream *Upstream) (*Service, error) {
	cfg = cfg.withDefaults()
	if err := ValidateOrigins(cfg.CorsOrigins); err != nil {
		return nil, err
	}
	corsCfg := corsConfig(cfg.CorsOrigins)
	if err := corsCfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrigin, err)
	}
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, cfg.NodeID))
	r.Use(observability.RequestMetricsMiddleware(cfg.NodeID))
	r.Use(cors.New(corsCfg))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Service{
		cfg:      cfg,
		upstream: upstream,
		router:   r,
		started:  time.Now(),
	}
	s.RegisterRoutes()
	return s, nil
}

func (s *Service) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Service) RegisterRoutes() {
	s.router.POST("/Get", func(c *gin.Context) {
		s.exchange(c, OpGet)
	})
	s.router.POST("/Set", func(c *gin.Context) {
		s.exchange(c, OpSet)
	})

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.started).String(),
			"node":     s.cfg.NodeID,
			"upstream": s.upstream.RemoteAddr().String(),
			"stats":    s.Stats(),
			"version":  "0.1.0",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Start binds the listen address and serves on a background goroutine.
func (s *Service) Start() error {
	if s.cfg.ListenAddr == "" {
		return ErrListenAddrRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acc != nil {
		return ErrServiceStarted
	}
	acc, err := acceptor.Start("forwarder", s.cfg.ListenAddr, s.router, s.cfg.Timeouts)
	if err != nil {
		return err
	}
	s.acc = acc
	log.Info().
		Str("node", s.cfg.NodeID).
		Str("addr", acc.Addr().String()).
		Str("upstream", s.upstream.RemoteAddr().String()).
		Msg("request forwarder listening")
	return nil
}

// Close stops the listener and waits for in-flight exchanges. The upstream is left
// open; its owner closes it. Safe to repeat.
func (s *Service) Close() error {
	s.mu.Lock()
	acc := s.acc
	s.mu.Unlock()
	if acc == nil {
		return nil
	}
	return acc.Stop()
}

// Acceptor returns the running acceptor, or nil before Start.
func (s *Service) Acceptor() *acceptor.Acceptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc
}

func (s *Service) Stats() Stats {
	return Stats{
		Forwarded: s.forwarded.Load(),
		Failed:    s.failed.Load(),
		Replies:   s.replies.Load(),
		Stale:     s.stale.Load(),
	}
}

// maxStaleReplies bounds how many queued datagrams one Get drops before sending.
const maxStaleReplies = 64

// Forward sends payload upstream verbatim as one datagram. For OpGet it then waits
// up to ReplyWait for one upstream reply, logs its size, and discards it. Replies
// that arrived after an earlier Get stopped waiting are dropped before the send so
// they are not attributed to this exchange.
func (s *Service) Forward(op Op, payload []byte) error {
	if op == OpGet {
		s.discardStale()
	}
	n, err := s.upstream.Send(payload)
	observability.RecordForward(s.cfg.NodeID, string(op), n, err == nil)
	if err != nil {
		s.failed.Add(1)
		log.Warn().
			Str("node", s.cfg.NodeID).
			Str("op", string(op)).
			Int("bytes", len(payload)).
			Err(err).
			Msg("forward upstream failed")
	} else {
		s.forwarded.Add(1)
		log.Info().
			Str("node", s.cfg.NodeID).
			Str("op", string(op)).
			Int("bytes", n).
			Msg("request forwarded upstream")
	}

	if op == OpGet {
		s.observeReply()
	}
	return err
}

func (s *Service) discardStale() {
	buf := make([]byte, s.cfg.ReplyBufferBytes)
	dropped := 0
	for dropped < maxStaleReplies {
		if _, err := s.upstream.Receive(buf, 0); err != nil {
			break
		}
		dropped++
	}
	if dropped == 0 {
		return
	}
	s.stale.Add(uint64(dropped))
	for i := 0; i < dropped; i++ {
		observability.RecordUpstreamReply(s.cfg.NodeID, "stale")
	}
	log.Debug().
		Str("node", s.cfg.NodeID).
		Int("dropped", dropped).
		Msg("dropped late upstream replies before get")
}

// observeReply is diagnostic only: the reply never reaches the caller.
func (s *Service) observeReply() {
	buf := make([]byte, s.cfg.ReplyBufferBytes)
	n, err := s.upstream.Receive(buf, s.cfg.ReplyWait)
	switch {
	case err == nil:
		s.replies.Add(1)
		observability.RecordUpstreamReply(s.cfg.NodeID, "received")
		observability.RecordDiagnostic(s.cfg.NodeID, socket.DiagProtocolAsymmetry)
		log.Info().
			Str("node", s.cfg.NodeID).
			Str("diag", socket.DiagProtocolAsymmetry).
			Int("bytes", n).
			Msg("upstream reply received, not relayed to caller")
	case errors.Is(err, ErrReplyTimeout):
		observability.RecordUpstreamReply(s.cfg.NodeID, "timeout")
		log.Debug().
			Str("node", s.cfg.NodeID).
			Dur("wait", s.cfg.ReplyWait).
			Msg("no upstream reply within wait")
	default:
		observability.RecordUpstreamReply(s.cfg.NodeID, "error")
		log.Warn().
			Str("node", s.cfg.NodeID).
			Err(err).
			Msg("upstream reply receive failed")
	}
}

func (s *Service) exchange(c *gin.Context, op Op) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("read request body: %v", err))
		return
	}

	outcome := "ok"
	if err := s.Forward(op, body); err != nil {
		outcome = "failed"
	}
	c.Header(ForwardHeader, outcome)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(s.cfg.Acknowledgement))
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{ForwardHeader},
		MaxAge:        12 * time.Hour,
	}
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
		allowed = append(allowed, origin)
	}
	if len(allowed) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = allowed
	return cfg
}
