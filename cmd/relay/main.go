package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/session"
)

const usage = "usage: relay <address>\n\naddress is an IPv4/IPv6 literal or a ws:// / wss:// URI\n"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	code := run(ctx, os.Args[1:], os.Stderr, config.Load)
	cancel()
	os.Exit(code)
}

// run returns the process exit code: 2 for bad usage, 1 when the session
// could not be set up or ended with an error.
func run(ctx context.Context, args []string, stderr io.Writer, load func() (*config.Config, error)) int {
	if len(args) != 1 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	s, err := session.New(args[0], session.WithConfig(cfg))
	if err != nil {
		fmt.Fprintf(stderr, "relay: %v\n", err)
		return 1
	}
	if err := s.Connect(ctx); err != nil {
		fmt.Fprintf(stderr, "relay: %v\n", err)
		return 1
	}
	log.Info().Str("endpoint", s.Endpoint().String()).Str("member", string(s.Ref())).Msg("relay connected")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		if err := s.Disconnect(); err != nil {
			fmt.Fprintf(stderr, "relay: %v\n", err)
			return 1
		}
		return 0
	case <-s.Done():
		if err := s.Err(); err != nil {
			fmt.Fprintf(stderr, "relay: connection lost: %v\n", err)
			return 1
		}
		log.Info().Msg("remote closed the connection")
		return 0
	}
}
