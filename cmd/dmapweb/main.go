package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/dmapctl/internal/backend"
	"github.com/danmuck/dmapctl/internal/config"
	"github.com/danmuck/dmapctl/internal/console"
	"github.com/danmuck/dmapctl/internal/logging"
	"github.com/danmuck/dmapctl/internal/view"
	"github.com/rs/zerolog/log"
)

const defaultConfigPath = "cmd/dmapweb/config.toml"

func main() {
	cfgPath := flag.String("config", defaultConfigPath, "web console config path")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*cfgPath); err != nil {
		log.Error().Err(err).Msg("dmapweb failed")
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.LoadWebConfig(cfgPath)
	if err != nil {
		return err
	}
	bc, err := cfg.Backend()
	if err != nil {
		return err
	}
	cc, err := cfg.Console()
	if err != nil {
		return err
	}
	client, err := backend.NewClient(bc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := console.New(cc, view.NewDispatcher(ctx, client))
	defer srv.Close()
	go srv.SweepLoop(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	log.Info().Str("backend", client.BaseURL()).Str("addr", cc.Addr).Msg("dmapweb started")
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("dmapweb stopping")
		return nil
	}
}
