package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arnavshah/weekly-scheduler-go/pkg/auth"
	"github.com/arnavshah/weekly-scheduler-go/pkg/database"
	"github.com/arnavshah/weekly-scheduler-go/pkg/scheduler"
	"github.com/arnavshah/weekly-scheduler-go/pkg/session"
)

// Store is the persistence the handlers depend on. *database.Repository
// implements it.
type Store interface {
	FindOrCreateKey(key, name string) (*database.APIKey, error)
	CreateKey(key, name string, rateLimit int) (*database.APIKey, error)
	ListKeys() ([]database.APIKey, error)
	RevokeKey(id uint) error
	UpdateKeyLimit(id uint, limit int) error
	RecordUsage(keyID uint, shifts, employees int) error
	RequestsToday(keyID uint) (int, error)
	UsageForKey(keyID uint) ([]database.APIUsage, error)
	RecordEvent(ev *database.ScheduleEvent) error
	EventsForSession(sessionID string) ([]database.ScheduleEvent, error)
	FindUser(username string) (*database.MasterUser, error)
}

// Handler contains dependencies for the route handlers
type Handler struct {
	Store    Store
	Auth     *auth.Manager
	Sessions *session.Manager
	Logger   *zap.Logger
}

const (
	ctxAPIKey   = "apiKey"
	ctxUserID   = "userID"
	ctxUsername = "username"
	ctxMetered  = "usageRecorded"

	defaultRateLimit = 10000
)

func bearer(c *gin.Context) string {
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// APIKeyMiddleware verifies the HMAC API key on scheduler routes and enforces
// the key's daily request limit.
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearer(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			return
		}

		userID, err := h.Auth.VerifyKey(key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			return
		}

		apiKey, err := h.Store.FindOrCreateKey(key, userID)
		if err != nil {
			h.internalError(c, err)
			c.Abort()
			return
		}

		used, err := h.Store.RequestsToday(apiKey.ID)
		if err != nil {
			h.internalError(c, err)
			c.Abort()
			return
		}
		if apiKey.RateLimit > 0 && used >= apiKey.RateLimit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Daily request limit reached"})
			return
		}

		c.Set(ctxAPIKey, apiKey)
		c.Set(ctxUserID, userID)
		c.Next()

		// Every gated request counts toward the daily limit. Handlers that
		// already recorded usage with their own totals are skipped.
		if c.GetBool(ctxMetered) {
			return
		}
		if err := h.Store.RecordUsage(apiKey.ID, 0, 0); err != nil {
			h.Logger.Warn("record usage failed", zap.Uint("key_id", apiKey.ID), zap.Error(err))
		}
	}
}

func currentKey(c *gin.Context) *database.APIKey {
	v, ok := c.Get(ctxAPIKey)
	if !ok {
		return nil
	}
	k, _ := v.(*database.APIKey)
	return k
}

// fail maps an error from the scheduling stack onto an HTTP response.
func (h *Handler) fail(c *gin.Context, err error) {
	var malformed *scheduler.MalformedInputError
	var unknown *scheduler.UnknownKeyError

	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
	case errors.As(err, &unknown):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": unknown.Error(), "kind": unknown.Kind, "key": unknown.Key})
	case errors.As(err, &malformed):
		c.JSON(http.StatusBadRequest, gin.H{"error": malformed.Error()})
	default:
		h.internalError(c, err)
	}
}

func (h *Handler) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	h.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// Login handles admin login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Store.FindUser(req.Username)
	if err != nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.Auth.CreateToken(user.Username)
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// GenerateKey issues a new HMAC API key
func (h *Handler) GenerateKey(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		RateLimit int    `json:"rate_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = defaultRateLimit
	}

	key := h.Auth.GenerateKey(req.Name)
	apiKey, err := h.Store.CreateKey(key, req.Name, req.RateLimit)
	if err != nil {
		h.internalError(c, err)
		return
	}

	h.Logger.Info("api key issued", zap.String("name", req.Name), zap.String("by", c.GetString(ctxUsername)))
	c.JSON(http.StatusOK, gin.H{
		"id":   apiKey.ID,
		"name": req.Name,
		"key":  key,
	})
}

// ListKeys returns all API keys
func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.Store.ListKeys()
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// RevokeKey deletes an API key
func (h *Handler) RevokeKey(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.Store.RevokeKey(id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

// UpdateKeyLimit updates the rate limit for a key
func (h *Handler) UpdateKeyLimit(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		RateLimit int `json:"rate_limit" form:"rate_limit"`
	}

	// Try JSON first, then Form/Query
	if err := c.ShouldBindJSON(&req); err != nil {
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rate_limit is required"})
			return
		}
	}
	if req.RateLimit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rate limit"})
		return
	}

	if err := h.Store.UpdateKeyLimit(id, req.RateLimit); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rate limit updated successfully"})
}

// GetUsage returns usage stats for a key
func (h *Handler) GetUsage(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	usage, err := h.Store.UsageForKey(id)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": usage})
}

// ListEvents returns the audit trail of a schedule session
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.Store.EventsForSession(c.Param("session"))
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
