package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arnavshah/weekly-scheduler-go/pkg/auth"
	"github.com/arnavshah/weekly-scheduler-go/pkg/config"
	"github.com/arnavshah/weekly-scheduler-go/pkg/database"
	"github.com/arnavshah/weekly-scheduler-go/pkg/handlers"
	applogger "github.com/arnavshah/weekly-scheduler-go/pkg/logger"
	"github.com/arnavshah/weekly-scheduler-go/pkg/router"
	"github.com/arnavshah/weekly-scheduler-go/pkg/session"
)

func main() {
	cfg, err := config.Load(os.Getenv("SHIFT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := applogger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	gin.SetMode(cfg.Server.GinMode)

	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	repo := database.NewRepository(db)

	created, err := auth.EnsureAdmin(repo, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
	if err != nil {
		logger.Warn("admin bootstrap skipped", zap.Error(err))
	} else if created {
		logger.Info("default admin user created", zap.String("username", cfg.Auth.AdminUsername))
	}

	// Redis is optional; fall back to in-process sessions when it is not
	// configured or unreachable.
	var store session.Store
	var redisStore *session.RedisStore
	if cfg.Redis.Addr != "" {
		redisStore, err = session.NewRedisStore(&cfg.Redis, cfg.Session.TTL, logger)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory sessions", zap.Error(err))
		} else {
			store = redisStore
		}
	}
	stopSweep := make(chan struct{})
	if store == nil {
		mem := session.NewMemoryStore(cfg.Session.TTL)
		store = mem
		go sweep(mem, stopSweep, logger)
	}

	h := &handlers.Handler{
		Store:    repo,
		Auth:     auth.NewManager(&cfg.Auth),
		Sessions: session.NewManager(store, logger),
		Logger:   logger,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.Setup(h, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}

	close(stopSweep)
	if redisStore != nil {
		_ = redisStore.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("server stopped")
}

func sweep(store *session.MemoryStore, stop <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				logger.Debug("expired sessions removed", zap.Int("count", n))
			}
		case <-stop:
			return
		}
	}
}
