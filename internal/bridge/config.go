package bridge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/simbridge/internal/acceptor"
	"github.com/danmuck/simbridge/internal/forwarder"
	"github.com/danmuck/simbridge/internal/wsbridge"
)

var (
	ErrInvalidMode              = errors.New("bridge: invalid transport mode")
	ErrListenAddrRequired       = errors.New("bridge: listen address required")
	ErrUpstreamAddrRequired     = errors.New("bridge: upstream address required")
	ErrInvalidHeartbeatInterval = errors.New("bridge: invalid heartbeat interval")
)

// Mode selects which transport a Server runs. Exactly one runs per Server.
type Mode string

const (
	ModeMessage Mode = "message"
	ModeRequest Mode = "request"
)

// Config configures one bridge server.
type Config struct {
	NodeID       string
	Mode         Mode
	ListenAddr   string
	UpstreamAddr string

	// DialTimeout bounds upstream resolution at startup.
	DialTimeout time.Duration

	Acknowledgement string
	ReplyWait       time.Duration
	MaxBodyBytes    int64
	MaxMessageBytes int64
	AllowedOrigins  []string
	Timeouts        acceptor.Timeouts
}

// ServiceConfig configures the standalone bridge runtime.
type ServiceConfig struct {
	Bridge            Config
	HeartbeatInterval time.Duration

	// RelayInterval paces draining the message transport into the upstream.
	// Zero disables the relay.
	RelayInterval    time.Duration
	RelayBufferBytes int
}

func DefaultConfig() Config {
	fwd := forwarder.DefaultConfig()
	ws := wsbridge.DefaultConfig()
	return Config{
		NodeID:          "simbridge",
		Mode:            ModeMessage,
		ListenAddr:      ":49010",
		UpstreamAddr:    "127.0.0.1:49009",
		DialTimeout:     5 * time.Second,
		Acknowledgement: fwd.Acknowledgement,
		ReplyWait:       fwd.ReplyWait,
		MaxBodyBytes:    fwd.MaxBodyBytes,
		MaxMessageBytes: ws.MaxMessageBytes,
		Timeouts:        acceptor.DefaultTimeouts(),
	}
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Bridge:            DefaultConfig(),
		HeartbeatInterval: 10 * time.Second,
		RelayInterval:     10 * time.Millisecond,
		RelayBufferBytes:  forwarder.MaxDatagramBytes,
	}
}

// ParseMode accepts the config spellings of each transport mode.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "message", "websocket", "ws":
		return ModeMessage, nil
	case "request", "http", "forwarder":
		return ModeRequest, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// Validate reports the first configuration problem, if any.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeMessage, ModeRequest:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return ErrListenAddrRequired
	}
	if strings.TrimSpace(c.UpstreamAddr) == "" {
		return ErrUpstreamAddrRequired
	}
	return forwarder.ValidateOrigins(c.AllowedOrigins)
}

func (c ServiceConfig) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if c.RelayInterval < 0 {
		return fmt.Errorf("bridge: invalid relay interval %v", c.RelayInterval)
	}
	return c.Bridge.Validate()
}

func (c Config) messageConfig() wsbridge.Config {
	return wsbridge.Config{
		NodeID:          c.NodeID,
		ListenAddr:      c.ListenAddr,
		MaxMessageBytes: c.MaxMessageBytes,
		AllowedOrigins:  c.AllowedOrigins,
		Timeouts:        c.Timeouts,
	}
}

func (c Config) requestConfig() forwarder.Config {
	return forwarder.Config{
		NodeID:          c.NodeID,
		ListenAddr:      c.ListenAddr,
		Acknowledgement: c.Acknowledgement,
		ReplyWait:       c.ReplyWait,
		MaxBodyBytes:    c.MaxBodyBytes,
		CorsOrigins:     c.AllowedOrigins,
		Timeouts:        c.Timeouts,
	}
}
