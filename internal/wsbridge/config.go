package wsbridge

import (
	"errors"
	"strings"

	"github.com/danmuck/simbridge/internal/acceptor"
)

var ErrListenAddrRequired = errors.New("wsbridge: listen address required")

// Config configures one message transport instance.
type Config struct {
	// NodeID labels logs and metrics.
	NodeID     string
	ListenAddr string
	// MaxMessageBytes caps one inbound message; zero means unlimited.
	MaxMessageBytes int64
	// AllowedOrigins restricts browser upgrades; empty accepts any origin.
	AllowedOrigins []string
	Timeouts       acceptor.Timeouts
}

func DefaultConfig() Config {
	return Config{
		NodeID:          "simbridge",
		ListenAddr:      ":49010",
		MaxMessageBytes: 1 << 20,
		Timeouts:        acceptor.DefaultTimeouts(),
	}
}

func (c Config) withDefaults() (Config, error) {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		return Config{}, ErrListenAddrRequired
	}
	if strings.TrimSpace(c.NodeID) == "" {
		c.NodeID = DefaultConfig().NodeID
	}
	if c.MaxMessageBytes < 0 {
		c.MaxMessageBytes = 0
	}
	c.Timeouts = c.Timeouts.WithDefaults()
	return c, nil
}
