package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shiftflow/admin"
	"shiftflow/config"
	"shiftflow/logger"
	"shiftflow/tenant"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, tenants, err := config.Load()
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("bootstrap logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := tenant.NewSupervisor(cfg.DatabaseURL, tenants, nil, zl)
	if err := sup.Start(ctx); err != nil {
		zl.Fatal("start tenants", zap.Error(err))
	}
	zl.Info("tenants started", zap.Strings("keys", sup.Keys()))

	auth := admin.NewAuthenticator(cfg.AdminUser, cfg.AdminPasswordHash, cfg.JWTSecret)
	srv := admin.NewServer(sup, auth, zl.Named("admin"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})
	g.Go(func() error {
		zl.Info("admin surface listening", zap.String("addr", cfg.AdminAddr))
		if err := srv.Start(cfg.AdminAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zl.Fatal("shutdown", zap.Error(err))
	}
	zl.Info("stopped")
}
