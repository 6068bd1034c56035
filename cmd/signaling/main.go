package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/config"
	"github.com/kiko-beam/beamlink/internal/dailyco"
	"github.com/kiko-beam/beamlink/internal/handlers"
	"github.com/kiko-beam/beamlink/internal/presence"
	"github.com/kiko-beam/beamlink/internal/relay"
	"github.com/kiko-beam/beamlink/internal/roomstore"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	log := zerolog.New(w).With().Timestamp().Logger()

	cfg := config.Load()

	// Redis is optional: without it the relay's in-memory table is the only
	// membership view and room metadata does not survive restarts.
	var (
		rooms   roomstore.Store
		tracker presence.Tracker
	)
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	rdb, err := roomstore.Dial(dialCtx, cfg.Redis)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, using in-memory room store")
		rooms = roomstore.NewMemoryStore()
		tracker = presence.Noop{}
	} else {
		defer rdb.Close()
		log.Info().Msg("Redis connection established")
		rooms = roomstore.NewRedisStore(rdb)
		tracker = presence.NewRedisTracker(rdb, log)
	}

	hub := relay.New(tracker, log)
	h := &handlers.Handler{
		Rooms:    rooms,
		Daily:    dailyco.New(cfg.Daily, log),
		Relay:    hub,
		Presence: tracker,
		Log:      log,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(cfg, h),
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}
