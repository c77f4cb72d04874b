package config

import (
	"time"

	"github.com/danmuck/simbridge/internal/bridge"
)

// File is the on-disk TOML shape of a bridge config. Durations are Go duration
// strings ("250ms", "5s").
type File struct {
	NodeID       string `toml:"node_id" comment:"identifier used in logs and metrics"`
	Mode         string `toml:"mode" comment:"message (websocket) or request (http /Get and /Set)"`
	ListenAddr   string `toml:"listen_addr"`
	UpstreamAddr string `toml:"upstream_addr" comment:"simulation host udp endpoint, resolved once at startup"`
	DialTimeout  string `toml:"dial_timeout"`

	Acknowledgement string   `toml:"acknowledgement" comment:"fixed response body for request mode"`
	ReplyWait       string   `toml:"reply_wait" comment:"how long /Get waits to observe an upstream reply"`
	MaxBodyBytes    int64    `toml:"max_body_bytes"`
	MaxMessageBytes int64    `toml:"max_message_bytes"`
	AllowedOrigins  []string `toml:"allowed_origins,omitempty"`

	HeartbeatInterval string `toml:"heartbeat_interval"`
	RelayInterval     string `toml:"relay_interval" comment:"message mode: drain interval for upstream relay, 0s disables"`
	RelayBufferBytes  int    `toml:"relay_buffer_bytes"`

	Timeouts TimeoutsFile `toml:"timeouts"`
}

type TimeoutsFile struct {
	ReadHeader string `toml:"read_header"`
	Read       string `toml:"read"`
	Write      string `toml:"write"`
	Handshake  string `toml:"handshake"`
	Shutdown   string `toml:"shutdown"`
}

// FromService renders cfg in its file form.
func FromService(cfg bridge.ServiceConfig) File {
	b := cfg.Bridge
	return File{
		NodeID:            b.NodeID,
		Mode:              string(b.Mode),
		ListenAddr:        b.ListenAddr,
		UpstreamAddr:      b.UpstreamAddr,
		DialTimeout:       durationString(b.DialTimeout),
		Acknowledgement:   b.Acknowledgement,
		ReplyWait:         durationString(b.ReplyWait),
		MaxBodyBytes:      b.MaxBodyBytes,
		MaxMessageBytes:   b.MaxMessageBytes,
		AllowedOrigins:    b.AllowedOrigins,
		HeartbeatInterval: durationString(cfg.HeartbeatInterval),
		RelayInterval:     durationString(cfg.RelayInterval),
		RelayBufferBytes:  cfg.RelayBufferBytes,
		Timeouts: TimeoutsFile{
			ReadHeader: durationString(b.Timeouts.ReadHeaderTimeout),
			Read:       durationString(b.Timeouts.ReadTimeout),
			Write:      durationString(b.Timeouts.WriteTimeout),
			Handshake:  durationString(b.Timeouts.HandshakeTimeout),
			Shutdown:   durationString(b.Timeouts.ShutdownTimeout),
		},
	}
}

func durationString(d time.Duration) string {
	return d.String()
}
