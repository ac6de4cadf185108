package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"skoll/internal/api"
	"skoll/internal/asset"
	"skoll/internal/config"
	"skoll/internal/exchange"
	"skoll/internal/journal"
	"skoll/internal/ledger"
	gateway "skoll/internal/net"
)

func main() {
	cfg := config.Load()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	registry := asset.NewRegistry(cfg.Admin)
	led := ledger.New(registry, ledger.NopAgent{})
	exch := exchange.New(registry, led)

	var jnl *journal.Journal
	if cfg.JournalPath != "" {
		var err error
		jnl, err = journal.Open(cfg.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Msg("unable to open trade journal")
		}
		defer jnl.Close()
		exch.SetRecorder(jnl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queries := api.NewServer(exch, jnl)
	go func() {
		if err := queries.Start(cfg.APIAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("query api stopped")
		}
	}()

	srv := gateway.New(cfg.GatewayAddr, exch)
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("gateway failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := queries.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("query api shutdown failed")
	}
}
