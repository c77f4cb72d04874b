package main

import (
	"fmt"
	"os"

	"github.com/danmuck/simbridge/internal/bridge"
	"github.com/danmuck/simbridge/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var path string
	var o overrides
	flags := pflag.NewFlagSet("bridgectl", pflag.ContinueOnError)
	flags.StringVarP(&path, "config", "c", "", "bridge config TOML (built-in defaults when empty)")
	flags.StringVar(&o.Mode, "mode", "", "override transport mode: message|request")
	flags.StringVar(&o.Listen, "listen", "", "override listen address")
	flags.StringVar(&o.Upstream, "upstream", "", "override upstream simulation address")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logging.ConfigureRuntime()
	gin.SetMode(gin.ReleaseMode)

	cfg, err := loadServiceConfig(path, o)
	if err != nil {
		return err
	}
	log.Info().
		Str("config", path).
		Str("mode", string(cfg.Bridge.Mode)).
		Str("listen", cfg.Bridge.ListenAddr).
		Str("upstream", cfg.Bridge.UpstreamAddr).
		Msg("bridgectl starting")
	return bridge.NewServiceWithConfig(cfg).Run()
}
