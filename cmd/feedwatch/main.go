package main

import (
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"feedwatch/internal/channel"
	"feedwatch/internal/config"
	"feedwatch/internal/diaglog"
	"feedwatch/internal/errhandler"
	"feedwatch/internal/errstore"
	"feedwatch/internal/fetch"
	"feedwatch/internal/filter"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Basic logger for startup errors
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("config", *configPath).
		Int("feeds", len(cfg.Feeds)).
		Msg("starting feedwatch")

	// Shared request layer and error pipeline
	diag, err := diaglog.New(cfg.DiagLogSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create diagnostic log")
	}
	client := fetch.NewClient(millis(cfg.RequestTimeout), diag, logger)
	store := errstore.New()
	handler := errhandler.New(store, nil, logger)

	client.OnUnauthorized(func() {
		logger.Warn().Msg("session no longer authenticated, aborting pending requests")
		client.AbortPending()
	})

	// Open one update channel per configured feed
	opts := channel.Options{
		ReconnectDelay: millis(cfg.ReconnectDelay),
		PollInterval:   millis(cfg.PollInterval),
		DialTimeout:    millis(cfg.DialTimeout),
		HTTPClient:     client,
	}

	teardowns := make([]func(), 0, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		teardown, err := openFeed(feed, opts, handler, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("feed", feed.Name).Msg("failed to open update channel")
		}
		teardowns = append(teardowns, teardown)
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	for _, teardown := range teardowns {
		teardown()
	}
	client.AbortPending()

	for _, rec := range handler.All() {
		logger.Warn().
			Str("id", rec.ID).
			Str("message", rec.Message).
			Time("at", rec.Timestamp).
			Msg("unresolved error at shutdown")
	}
}

// openFeed wires one feed: optional JS filter, update printing, and transport
// error registration.
func openFeed(feed config.FeedConfig, opts channel.Options, handler *errhandler.Handler, logger zerolog.Logger) (func(), error) {
	feedLogger := logger.With().Str("feed", feed.Name).Logger()

	var flt *filter.Filter
	if feed.Filter != "" {
		var err error
		flt, err = filter.New(feed.Filter, feedLogger)
		if err != nil {
			return nil, err
		}
	}

	onUpdate := func(item json.RawMessage) {
		if flt != nil && !flt.Match(item) {
			return
		}
		feedLogger.Info().RawJSON("update", item).Msg("update received")
	}

	onTransportError := func(id, message string) {
		handler.Register(id, message, nil, nil)
	}

	return channel.Open(feed.SocketURL, feed.PollingURL, onUpdate, onTransportError, opts, feedLogger)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	// Set log level
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Configure output
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
