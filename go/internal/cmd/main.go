package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/roast-arena/go/internal/arena/channel"
	"github.com/mcdev12/roast-arena/go/internal/config"
	"github.com/mcdev12/roast-arena/go/internal/tui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	closeLog, err := setupLogging(cfg.Log, cfg.TUI.Enabled)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	run(ctx, stop, cfg, services)
	log.Info().Msg("roast arena client stopped")
}

func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config, services *Services) {
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		err := services.Channel.Run(ctx)
		if errors.Is(err, channel.ErrReconnectExhausted) {
			log.Error().Err(err).Msg("event channel gave up, relying on polling")
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("event channel stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := services.Orchestrator.Run(ctx); err != nil {
			log.Error().Err(err).Msg("orchestrator stopped")
		}
	}()

	if cfg.Inspector.Enabled {
		server := setupServer(cfg, services)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("addr", server.Addr).Msg("inspector listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("inspector server failed")
				stop()
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("inspector shutdown")
			}
		}()
	}

	if cfg.TUI.Enabled {
		if err := tui.Run(ctx, services.Orchestrator); err != nil {
			log.Error().Err(err).Msg("terminal client failed")
		}
		stop()
	}

	<-ctx.Done()
	wg.Wait()
}

// setupLogging applies LOG_LEVEL and sends logs to LOG_FILE while the terminal UI owns
// the screen.
func setupLogging(cfg config.LogConfig, toFile bool) (func(), error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !toFile || cfg.File == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}
	log.Logger = log.Output(out)
	return func() { _ = f.Close() }, nil
}
