package handler

import (
	"net/http"

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

var engine http.Handler

func init() {
	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	logger, err := applogger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}

	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	repo := database.NewRepository(db)
	if _, err := auth.EnsureAdmin(repo, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		logger.Warn("admin bootstrap skipped", zap.Error(err))
	}

	// Function instances do not share memory, so sessions only survive
	// between invocations when redis is configured.
	var store session.Store = session.NewMemoryStore(cfg.Session.TTL)
	if cfg.Redis.Addr != "" {
		rs, err := session.NewRedisStore(&cfg.Redis, cfg.Session.TTL, logger)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory sessions", zap.Error(err))
		} else {
			store = rs
		}
	}

	h := &handlers.Handler{
		Store:    repo,
		Auth:     auth.NewManager(&cfg.Auth),
		Sessions: session.NewManager(store, logger),
		Logger:   logger,
	}
	engine = router.Setup(h, logger)
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, r *http.Request) {
	engine.ServeHTTP(w, r)
}
