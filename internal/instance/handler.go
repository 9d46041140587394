package instance

import (
	"net/http"

	"github.com/ahwlsqja/shadow-vote/internal/common/middleware"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Controller is the part of fhevm.Lifecycle the handler drives
type Controller interface {
	Snapshot() fhevm.Snapshot
	Refresh()
}

// StatusResponse represents the instance lifecycle state
type StatusResponse struct {
	Status     fhevm.Status `json:"status" example:"ready" enums:"idle,loading,ready,error"`
	Error      string       `json:"error,omitempty" example:"dial tcp: connection refused"`
	Generation uint64       `json:"generation" example:"3"`
}

// ToStatusResponse converts a lifecycle snapshot
func ToStatusResponse(s fhevm.Snapshot) StatusResponse {
	resp := StatusResponse{Status: s.Status, Generation: s.Generation}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

// Handler exposes the fhevm instance lifecycle
type Handler struct {
	lifecycle Controller
	logger    *zap.Logger
}

// NewHandler creates a new instance handler
func NewHandler(lifecycle Controller, logger *zap.Logger) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// RegisterRoutes registers lifecycle routes on the router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/fhevm/status", h.Status)
	rg.POST("/fhevm/refresh", h.Refresh)
}

// Status godoc
// @Summary Instance status
// @Description Returns the state of the encryption instance
// @Tags fhevm
// @Produce json
// @Success 200 {object} middleware.SuccessResponse{data=StatusResponse}
// @Router /api/v1/fhevm/status [get]
func (h *Handler) Status(c *gin.Context) {
	middleware.RespondOK(c, ToStatusResponse(h.lifecycle.Snapshot()))
}

// Refresh godoc
// @Summary Refresh instance
// @Description Discards the current instance and starts a new creation attempt
// @Tags fhevm
// @Produce json
// @Success 202 {object} middleware.SuccessResponse{data=StatusResponse}
// @Router /api/v1/fhevm/refresh [post]
func (h *Handler) Refresh(c *gin.Context) {
	h.lifecycle.Refresh()
	snap := h.lifecycle.Snapshot()
	h.logger.Info("fhevm instance refresh requested",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Uint64("generation", snap.Generation),
	)
	middleware.RespondSuccess(c, http.StatusAccepted, ToStatusResponse(snap))
}
