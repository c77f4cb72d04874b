package main

import (
	"fmt"
	"os"

	"github.com/danmuck/simbridge/internal/config"
	"github.com/danmuck/simbridge/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "cmd/bridgectl/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	output := flags.StringP("output", "o", defaultConfigPath, "output path for config template")
	validate := flags.Bool("validate", false, "validate an existing config file")
	input := flags.StringP("input", "i", defaultConfigPath, "config path for validation")
	force := flags.Bool("force", false, "overwrite existing config file")
	stdout := flags.Bool("stdout", false, "print the template instead of writing it")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	logging.ConfigureRuntime()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			return err
		}
		log.Info().
			Str("path", *input).
			Str("mode", string(cfg.Bridge.Mode)).
			Str("upstream", cfg.Bridge.UpstreamAddr).
			Msg("validated bridge config")
		return nil
	}

	if *stdout {
		tpl, err := config.Template()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(os.Stdout, tpl)
		return err
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		return err
	}
	log.Info().Str("path", *output).Msg("wrote bridge config template")
	return nil
}
