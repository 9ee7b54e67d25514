package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"

	"staffroom/api"
	"staffroom/auth"
	"staffroom/internal"
	"staffroom/moderation"
	"staffroom/repositories"
	"staffroom/runtime"
	"staffroom/runtime/workers"
	"staffroom/search"
	"staffroom/services"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting. This pattern ensures all defers (database
// cleanup, index flush) execute before the process exits, and keeps the
// initialization logic testable.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB message log + Bluge full-text index)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugInspectorPort, endpoint))
		database.StartDebugServer(db, config.DebugInspectorPort, endpoint, messageMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Moderation
	censored, err := moderation.LoadCensoredWords()
	if err != nil {
		return exitRuntime, fmt.Errorf("censored words loading failed: %w", err)
	}
	logger.Info(fmt.Sprintf("%d censored words loaded (%d languages)",
		len(censored.Words), len(censored.Languages)))
	moderator, err := moderation.NewModerator(censored.Words, charReplacement)
	if err != nil {
		return exitRuntime, err
	}

	// 4. Room runtime: registry, supervisor, orchestrator, sinks
	registry := runtime.NewRegistry()
	supervisor := workers.NewSupervisor(logger)
	orchestrator := runtime.NewOrchestrator(logger, supervisor, registry,
		config.BufferSize, config.SinkTimeout, config.HealthInterval)

	messageRepository := repositories.NewMessageRepository(db, logger)
	index := search.NewIndex(blugeWriter, logger)
	orchestrator.AddSinks(search.NewSink(index, logger))

	guard := services.NewRedactionGuard()
	chatService := services.NewChatService(messageRepository, orchestrator,
		guard, moderator, index, logger, config.MaxBodyLength)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 6. HTTP server
	issuer := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	server := api.NewServer(logger, chatService, config.ConnectionBufferSize)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", config.Port),
		Handler: server.Router(issuer),
	}

	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// messageMapper renders message rows in the badger debug inspector.
func messageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	var stored struct {
		AuthorName string   `json:"author_name"`
		Body       string   `json:"body"`
		SeenBy     []string `json:"seen_by"`
		Deleted    bool     `json:"deleted"`
	}
	if err := json.Unmarshal(val, &stored); err != nil {
		return row
	}
	row.Type = "MESSAGE"
	if stored.Deleted {
		row.Type = "REDACTED"
	}
	row.Detail = fmt.Sprintf("%s: %s (seen by %d)", stored.AuthorName, stored.Body, len(stored.SeenBy))
	return row
}
