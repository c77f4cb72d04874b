package main

import (
	"strings"

	"github.com/danmuck/simbridge/internal/bridge"
	"github.com/danmuck/simbridge/internal/config"
)

// overrides are command-line values applied on top of the config file.
type overrides struct {
	Mode     string
	Listen   string
	Upstream string
}

func loadServiceConfig(path string, o overrides) (bridge.ServiceConfig, error) {
	cfg := bridge.DefaultServiceConfig()
	if strings.TrimSpace(path) != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return bridge.ServiceConfig{}, err
		}
		cfg = loaded
	}

	if v := strings.TrimSpace(o.Mode); v != "" {
		mode, err := bridge.ParseMode(v)
		if err != nil {
			return bridge.ServiceConfig{}, err
		}
		cfg.Bridge.Mode = mode
	}
	if v := strings.TrimSpace(o.Listen); v != "" {
		cfg.Bridge.ListenAddr = v
	}
	if v := strings.TrimSpace(o.Upstream); v != "" {
		cfg.Bridge.UpstreamAddr = v
	}
	if err := cfg.Validate(); err != nil {
		return bridge.ServiceConfig{}, err
	}
	return cfg, nil
}
