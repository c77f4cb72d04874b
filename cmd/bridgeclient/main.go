package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/danmuck/simbridge/internal/forwarder"
	"github.com/danmuck/simbridge/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bridgeclient: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("bridgeclient", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: bridgeclient [flags] [payload...]\n\npayload is read from stdin when omitted.\n\n")
		flags.PrintDefaults()
	}
	addr := flags.StringP("addr", "a", "127.0.0.1:49010", "bridge listen address")
	transport := flags.StringP("transport", "t", "ws", "bridge transport: ws|http")
	op := flags.String("op", string(forwarder.OpSet), "http exchange: get|set")
	hexMode := flags.Bool("hex", false, "payload is hex text")
	timeout := flags.Duration("timeout", 5*time.Second, "dial and request timeout")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	logging.ConfigureRuntime()

	payload, err := decodePayload(flags.Args(), *hexMode, os.Stdin)
	if err != nil {
		return err
	}

	switch *transport {
	case "ws", "message":
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		if err := sendMessage(ctx, *addr, payload, *timeout); err != nil {
			return err
		}
		log.Info().Str("addr", *addr).Int("bytes", len(payload)).Msg("message sent")
	case "http", "request":
		res, err := sendRequest(*addr, forwarder.Op(*op), payload, *timeout)
		if err != nil {
			return err
		}
		log.Info().
			Str("addr", *addr).
			Str("op", *op).
			Int("bytes", len(payload)).
			Int("status", res.Status).
			Str("forward", res.Forward).
			Msg("request acknowledged")
		fmt.Println(res.Body)
	default:
		return fmt.Errorf("unknown transport %q", *transport)
	}
	return nil
}
