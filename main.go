package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"giteakit/internal/api"
	"giteakit/internal/app"
	"giteakit/internal/config"
	"giteakit/internal/file"
	"giteakit/internal/logging"
	"giteakit/internal/middleware"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	a, err := app.Open(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	box := api.NewSessionBox()
	defer box.CloseAll()

	sessions := api.NewSessionHandler(box, a.Gitea, file.Options{
		Autosave:   a.Drafts,
		CatalogOrg: cfg.Gitea.CatalogOrg,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", api.Health)
	sessions.Register(mux)

	handler := middleware.Chain(
		mux,
		middleware.Logger(logger),
		middleware.Recover(logger),
		middleware.RequestID,
	)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("address", cfg.Addr()),
		zap.String("gitea", cfg.Gitea.Server),
		zap.String("environment", cfg.Environment))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
