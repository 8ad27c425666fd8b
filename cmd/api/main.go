package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clusterpval/adapters/rng"
	"clusterpval/internal"
	"clusterpval/internal/api"
	"clusterpval/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env if present; real environment variables win.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	internal.DefaultLogger = logger
	if logger.GetLevel() < internal.LogLevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewTestHandler(cfg.Estimation, cfg.Server.MaxConcurrent, rng.NewAdapter(), logger)

	apiServer := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     api.NewRouter(handler, logger),
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	opsServer := &http.Server{
		Addr:        ":" + cfg.Server.OpsPort,
		Handler:     api.NewOpsRouter(handler),
		ReadTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{apiServer, opsServer} {
		g.Go(func() error {
			logger.Info("[Server] listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info("[Server] shutting down")
		_ = opsServer.Shutdown(shutdownCtx)
		return apiServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("[Server] %v", err)
		os.Exit(1)
	}
}
