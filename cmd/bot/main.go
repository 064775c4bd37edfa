package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"slack-logger/internal/chat"
	"slack-logger/internal/chat/slack"
	"slack-logger/internal/chat/telegram"
	"slack-logger/internal/command"
	"slack-logger/internal/config"
	"slack-logger/internal/directory"
	"slack-logger/internal/ingest"
	"slack-logger/internal/logger"
	"slack-logger/internal/scheduler"
	"slack-logger/internal/search"
	"slack-logger/internal/session"
	"slack-logger/internal/storage"
)

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	lg := logger.New("slack-logger", cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to resolve timezone")
	}

	backend, closeBackend, err := search.Open(cfg, lg.With().Str("component", "search").Logger())
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to open search backend")
	}
	defer func() {
		if err := closeBackend(); err != nil {
			lg.Error().Err(err).Msg("failed to close search backend")
		}
	}()

	var rec *storage.FileRecorder
	if cfg.LogFilePath != "" {
		rec, err = storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			lg.Fatal().Err(err).Msg("failed to init message log")
		}
	}

	transport := newTransport(cfg, lg.With().Str("component", "chat").Logger())
	defer func() { _ = transport.Close() }()

	var recorder storage.Recorder
	if rec != nil {
		recorder = rec
	}
	store := storage.NewStore(recorder, backend, loc, lg.With().Str("component", "store").Logger())
	engine := search.NewEngine(backend, lg.With().Str("component", "search").Logger())
	interp := command.NewInterpreter(engine, session.NewManager(), cfg.PageSize, cfg.MaxPageSize,
		lg.With().Str("component", "command").Logger())
	loop := ingest.New(transport, directory.NewCache(transport), store, interp, cfg.SearchTimeout,
		lg.With().Str("component", "ingest").Logger())

	sched := scheduler.New(loc, lg.With().Str("component", "scheduler").Logger())
	if rec != nil {
		sched.SetRotator(rec)
	}
	if err := sched.Start(); err != nil {
		lg.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg.Info().
		Str("provider", string(cfg.ChatProvider)).
		Str("backend", string(cfg.SearchBackend)).
		Str("tz", loc.String()).
		Msg("bot starting")
	if err := loop.Run(ctx); err != nil {
		lg.Error().Err(err).Msg("bot stopped with error")
		exitCode = 1
		return
	}
	lg.Info().Msg("bot stopped")
}

type closableTransport interface {
	chat.Transport
	Close() error
}

func newTransport(cfg *config.Config, lg zerolog.Logger) closableTransport {
	switch cfg.ChatProvider {
	case config.ProviderTelegram:
		return telegram.New(cfg.TelegramBotToken, cfg.ReconnectDelay, lg)
	default:
		return slack.New(slack.Config{
			Token:          cfg.SlackToken,
			APIURL:         cfg.SlackAPIURL,
			ReconnectDelay: cfg.ReconnectDelay,
			PostRate:       cfg.PostRate,
			PostBurst:      cfg.PostBurst,
		}, lg)
	}
}
