package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agora/internal/api"
	"agora/internal/auth"
	"agora/internal/chat"
	"agora/internal/commands"
	"agora/internal/config"
	"agora/internal/http"
	"agora/internal/metrics"
	"agora/internal/retention"
	"agora/internal/storage"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("agora", flag.ContinueOnError)
	snapshot := fs.Bool("snapshot", false, "Ask the running server to write a checkpoint and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if *snapshot {
		return commands.Snapshot(cfg, os.Stdout)
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	store, err := loadStore(cfg, bbStorage)
	if err != nil {
		return err
	}

	authService, err := auth.NewAuthService(ctx, auth.Config{TokenExpiry: cfg.TokenExpiry}, bbStorage)
	if err != nil {
		return err
	}

	m := metrics.New(store)
	scheduler, err := retention.New(store, bbStorage, cfg.RetentionCron, m)
	if err != nil {
		return err
	}

	apiHandlers := api.New(store, authService, m, api.Limits{RPS: cfg.APIRPS, Burst: cfg.APIBurst})
	apiServer := http.NewAPIServer(apiHandlers, m, cfg.APIAddr)
	adminServer := http.NewAdminServer(api.NewAdminHandler(scheduler, store), m, cfg.AdminAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(adminServer.Start)
	g.Go(apiServer.Start)
	g.Go(func() error {
		return scheduler.Run(gCtx)
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Admin server shutdown error", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown error", "error", err)
		}
		// Writers are gone, so this checkpoint is the final state.
		if err := scheduler.Checkpoint(shutdownCtx); err != nil {
			slog.Error("Final checkpoint failed", "error", err)
			return err
		}
		slog.Info("Final checkpoint written", "db", cfg.DBFile)
		return nil
	})

	return g.Wait()
}

// loadStore restores the store from the last checkpoint, or starts empty when there is none.
func loadStore(cfg *config.Config, bbStorage *storage.BboltStorage) (*chat.Store, error) {
	snap, found, err := bbStorage.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	if !found {
		slog.Info("No checkpoint found, starting empty", "db", cfg.DBFile)
		return chat.New(cfg.ChatConfig())
	}

	store, err := chat.Restore(cfg.ChatConfig(), snap)
	if err != nil {
		return nil, err
	}
	savedAt, _, _ := bbStorage.SavedAt()
	slog.Info("Restored checkpoint",
		"db", cfg.DBFile,
		"users", len(snap.Users),
		"messages", len(snap.Messages),
		"saved_at", savedAt.Format(time.RFC3339))
	return store, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}
