package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/api"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/config"
)

func main() {
	help := flag.Bool("help", false, "print the environment variables and exit")
	principalHeader := flag.String("principal-header", api.DefaultPrincipalHeader, "request header naming the acting user")
	flag.Parse()

	if *help {
		desc, err := config.EnvDescription()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(desc)
		return
	}

	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		logger.Error("Failed to load server configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := serverConfig.BuildService(ctx, logger)
	if err != nil {
		logger.Error("Failed to build service", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.LoggingMiddleware(logger))
	r.Use(api.RecoveryMiddleware)
	r.Use(api.PrincipalMiddleware(*principalHeader))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{
			"status":        "healthy",
			"environment":   serverConfig.Environment,
			"repository_id": serverConfig.RepositoryID,
		})
	})
	r.Mount("/repositories", api.NewHandler(svc).Routes())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: r,
	}

	go func() {
		logger.Info("Content lifecycle server starting",
			"port", serverConfig.Port,
			"environment", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"default_storage", serverConfig.DefaultStorageBackend,
			"repository_id", serverConfig.RepositoryID,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exiting")
}
