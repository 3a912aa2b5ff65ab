package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/auth"
	"chat-relay/blob"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/tracking"
	"chat-relay/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components and manages the server lifecycle, so that
// deferred cleanup (database close, worker drain) executes on every exit
// path.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Collaborators
	verifier := auth.NewVerifier(config.JWTSecret, config.JWTIssuer)
	blobs, err := blob.NewDiskStore(config.UploadDir, config.UploadBaseURL+"/uploads")
	if err != nil {
		return err
	}

	var moderator *moderation.Moderator
	if words := config.Words(); len(words) > 0 {
		replacement, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return err
		}
		if moderator, err = moderation.NewModerator(words, replacement); err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
	}

	// 4. Core: registry, store, tracker, reconciliation, presence
	registry := runtime.NewRegistry()
	store := repositories.NewMessageStore(db, log)
	tracker := tracking.NewTracker(store, registry, moderator, log)
	reconciler := tracking.NewReconciler(store, tracker, log)
	router := transport.NewRouter(registry, tracker, reconciler, verifier,
		config.ConnectionBufferSize, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(runtime.NewPresenceWorker(registry, registry.Changes(), log))
	go sup.Run(ctx)

	// 5. HTTP & websocket surface
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Static("/uploads", config.UploadDir)
	transport.NewAPI(tracker, blobs, verifier, log).Mount(ctx, app, router)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", address)
		if err := app.Listen(address); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 6. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	_ = app.Shutdown()
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
