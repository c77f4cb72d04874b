package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/simbridge/internal/bridge"
)

// Load decodes path over bridge.DefaultServiceConfig. Keys absent from the file
// keep their defaults; the result is validated.
func Load(path string) (bridge.ServiceConfig, error) {
	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return bridge.ServiceConfig{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	cfg, err := apply(bridge.DefaultServiceConfig(), raw, meta)
	if err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func apply(cfg bridge.ServiceConfig, raw File, meta toml.MetaData) (bridge.ServiceConfig, error) {
	b := &cfg.Bridge

	if meta.IsDefined("node_id") {
		if id := strings.TrimSpace(raw.NodeID); id != "" {
			b.NodeID = id
		}
	}
	if meta.IsDefined("mode") {
		mode, err := bridge.ParseMode(raw.Mode)
		if err != nil {
			return cfg, err
		}
		b.Mode = mode
	}
	if meta.IsDefined("listen_addr") {
		b.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("upstream_addr") {
		b.UpstreamAddr = strings.TrimSpace(raw.UpstreamAddr)
	}
	if meta.IsDefined("acknowledgement") {
		b.Acknowledgement = raw.Acknowledgement
	}
	if meta.IsDefined("max_body_bytes") {
		b.MaxBodyBytes = raw.MaxBodyBytes
	}
	if meta.IsDefined("max_message_bytes") {
		b.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("allowed_origins") {
		b.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if meta.IsDefined("relay_buffer_bytes") {
		cfg.RelayBufferBytes = raw.RelayBufferBytes
	}

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"dial_timeout"}, raw.DialTimeout, &b.DialTimeout},
		{[]string{"reply_wait"}, raw.ReplyWait, &b.ReplyWait},
		{[]string{"heartbeat_interval"}, raw.HeartbeatInterval, &cfg.HeartbeatInterval},
		{[]string{"relay_interval"}, raw.RelayInterval, &cfg.RelayInterval},
		{[]string{"timeouts", "read_header"}, raw.Timeouts.ReadHeader, &b.Timeouts.ReadHeaderTimeout},
		{[]string{"timeouts", "read"}, raw.Timeouts.Read, &b.Timeouts.ReadTimeout},
		{[]string{"timeouts", "write"}, raw.Timeouts.Write, &b.Timeouts.WriteTimeout},
		{[]string{"timeouts", "handshake"}, raw.Timeouts.Handshake, &b.Timeouts.HandshakeTimeout},
		{[]string{"timeouts", "shutdown"}, raw.Timeouts.Shutdown, &b.Timeouts.ShutdownTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		out = append(out, origin)
	}
	return out
}
