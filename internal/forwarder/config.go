package forwarder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/simbridge/internal/acceptor"
)

var (
	ErrListenAddrRequired = errors.New("forwarder: listen address required")
	ErrInvalidOrigin      = errors.New("forwarder: invalid allowed origin")
)

// DefaultAcknowledgement is the fixed body returned for every exchange.
const DefaultAcknowledgement = "Hello World!"

// Config configures the request/response forwarder.
type Config struct {
	NodeID          string
	ListenAddr      string
	Acknowledgement string
	// ReplyWait bounds the diagnostic upstream receive performed by Get.
	ReplyWait        time.Duration
	ReplyBufferBytes int
	MaxBodyBytes     int64
	CorsOrigins      []string
	Timeouts         acceptor.Timeouts
}

func DefaultConfig() Config {
	return Config{
		NodeID:           "simbridge",
		ListenAddr:       ":49010",
		Acknowledgement:  DefaultAcknowledgement,
		ReplyWait:        250 * time.Millisecond,
		ReplyBufferBytes: MaxDatagramBytes,
		MaxBodyBytes:     MaxDatagramBytes,
		Timeouts:         acceptor.DefaultTimeouts(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if strings.TrimSpace(c.NodeID) == "" {
		c.NodeID = def.NodeID
	}
	if c.Acknowledgement == "" {
		c.Acknowledgement = def.Acknowledgement
	}
	if c.ReplyWait <= 0 {
		c.ReplyWait = def.ReplyWait
	}
	if c.ReplyBufferBytes <= 0 || c.ReplyBufferBytes > MaxDatagramBytes {
		c.ReplyBufferBytes = def.ReplyBufferBytes
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	c.Timeouts = c.Timeouts.WithDefaults()
	return c
}

// ValidateOrigins accepts "*" or absolute http(s) origins, the shapes both the
// CORS middleware and the WebSocket origin check can match.
func ValidateOrigins(origins []string) error {
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			continue
		}
		host, ok := strings.CutPrefix(origin, "https://")
		if !ok {
			host, ok = strings.CutPrefix(origin, "http://")
		}
		if !ok {
			return fmt.Errorf("%w: %q needs an http:// or https:// scheme", ErrInvalidOrigin, origin)
		}
		if host == "" {
			return fmt.Errorf("%w: %q has no host", ErrInvalidOrigin, origin)
		}
	}
	return nil
}
