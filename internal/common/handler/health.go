package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	checkOK       = "ok"
	checkError    = "error"
	checkDisabled = "disabled"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db  *sql.DB
	rdb *redis.Client
}

// NewHealthHandler creates a new HealthHandler. db and rdb may be nil
// when the storage backend does not use them.
func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:  db,
		rdb: rdb,
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Status string `json:"status" example:"ok"`
	DB     string `json:"db" example:"ok"`
	Redis  string `json:"redis" example:"disabled"`
}

// RegisterRoutes registers health routes
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
}

// Health godoc
// @Summary Health check
// @Description Returns server health status
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: checkOK})
}

// Ready godoc
// @Summary Readiness check
// @Description Returns readiness including the configured DB and Redis backends
// @Tags health
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 503 {object} ReadyResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	response := ReadyResponse{
		Status: checkOK,
		DB:     checkDisabled,
		Redis:  checkDisabled,
	}
	statusCode := http.StatusOK

	if h.db != nil {
		response.DB = checkOK
		if err := h.db.PingContext(ctx); err != nil {
			response.DB = checkError
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	if h.rdb != nil {
		response.Redis = checkOK
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			response.Redis = checkError
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, response)
}
