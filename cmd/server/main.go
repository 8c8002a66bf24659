// Command colosseum-server hosts the lobby, play coordinator, and
// registry actors behind a single WebSocket endpoint, wiring together
// the packages under internal/ the way the teacher's cmd/server/main.go
// wires its Hub, handlers, and MongoDB connection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"colosseum/internal/catalog"
	"colosseum/internal/config"
	"colosseum/internal/game"
	"colosseum/internal/httpserver"
	"colosseum/internal/lobby"
	"colosseum/internal/session"
	"colosseum/internal/store"
	"colosseum/internal/store/fsstore"
	"colosseum/internal/store/mongostore"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	archiveStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := game.Start(catalog.Builtin())

	lob := lobby.Start(ctx, lobby.Config{
		Registry:             registry,
		Store:                archiveStore,
		VerificationPassword: cfg.VerificationPassword,
		Logger:               log,
	})

	srv := httpserver.New(httpserver.Config{
		BindAddress:      cfg.BindAddress,
		ListenPort:       cfg.ListenPort,
		UnixDomainSocket: cfg.UnixDomainSocket,
		CORSOrigins:      cfg.CORSOrigins,
		Lobby:            lob,
		Logger:           log,
		SessionDeps: session.Deps{
			Registry: registry,
			Lobby:    lob,
			Store:    archiveStore,
			Logger:   log,
		},
	})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Serve(gctx) })

	signalCtx, stopSignals := signal.NotifyContext(gctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	group.Go(func() error {
		<-signalCtx.Done()
		log.Info("shutting down")
		cancel()
		return nil
	})

	waitErr := group.Wait()

	closeCtx, closeCancel := context.WithCancel(context.Background())
	defer closeCancel()
	if err := archiveStore.Close(closeCtx); err != nil {
		log.Warn("store close failed", "error", err)
	}

	return waitErr
}

// openStore picks the configured backend and wraps it in store.NewActor so
// every caller — every match's play coordinator, every client session —
// reaches it through one serialized owner instead of calling in directly.
func openStore(cfg *config.Config, log *slog.Logger) (store.Store, error) {
	if cfg.MongoURI != "" {
		s, err := mongostore.New(cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return nil, fmt.Errorf("mongo store: %w", err)
		}
		return store.NewActor(s), nil
	}
	s, err := fsstore.New(cfg.ArchiveDir)
	if err != nil {
		return nil, fmt.Errorf("filesystem store: %w", err)
	}
	return store.NewActor(s), nil
}
