package decryption

import (
	"github.com/ahwlsqja/shadow-vote/internal/common/errors"
	"github.com/ahwlsqja/shadow-vote/internal/common/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for decryption authorizations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new decryption handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers decryption-signature routes on the router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	signatures := rg.Group("/decryption-signatures")
	{
		signatures.POST("", h.Authorize)
		signatures.GET("", h.Lookup)
		signatures.GET("/cache-key", h.CacheKey)
	}
}

// Authorize godoc
// @Summary Authorize decryption
// @Description Returns a valid decryption authorization for the contracts, signing one with the gateway key when none is cached
// @Tags decryption
// @Accept json
// @Produce json
// @Param request body AuthorizeRequest true "Contracts and optional key pair"
// @Success 200 {object} middleware.SuccessResponse{data=SignatureResponse}
// @Failure 400 {object} middleware.ErrorResponse "Invalid input"
// @Failure 403 {object} middleware.ErrorResponse "Authorization failed or declined"
// @Failure 503 {object} middleware.ErrorResponse "Instance not ready"
// @Router /api/v1/decryption-signatures [post]
func (h *Handler) Authorize(c *gin.Context) {
	var req AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, errors.InvalidInput(err.Error()))
		return
	}

	sig, key, err := h.service.Authorize(c.Request.Context(), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	middleware.RespondOK(c, ToSignatureResponse(sig, key))
}

// Lookup godoc
// @Summary Get cached authorization
// @Description Returns the cached, unexpired authorization without signing
// @Tags decryption
// @Produce json
// @Param user query string false "User address, defaults to the gateway signer"
// @Param contracts query string true "Comma-separated contract addresses"
// @Param public_key query string false "Hex public key"
// @Success 200 {object} middleware.SuccessResponse{data=SignatureResponse}
// @Failure 404 {object} middleware.ErrorResponse "No valid authorization cached"
// @Router /api/v1/decryption-signatures [get]
func (h *Handler) Lookup(c *gin.Context) {
	var q CacheKeyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.RespondError(c, errors.InvalidInput(err.Error()))
		return
	}

	sig, key, err := h.service.Lookup(c.Request.Context(), &q)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	middleware.RespondOK(c, ToSignatureResponse(sig, key))
}

// CacheKey godoc
// @Summary Derive cache key
// @Description Derives the storage key of an authorization; contract order does not matter
// @Tags decryption
// @Produce json
// @Param user query string false "User address, defaults to the gateway signer"
// @Param contracts query string true "Comma-separated contract addresses"
// @Param public_key query string false "Hex public key"
// @Success 200 {object} middleware.SuccessResponse{data=CacheKeyResponse}
// @Failure 400 {object} middleware.ErrorResponse "Invalid input"
// @Router /api/v1/decryption-signatures/cache-key [get]
func (h *Handler) CacheKey(c *gin.Context) {
	var q CacheKeyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.RespondError(c, errors.InvalidInput(err.Error()))
		return
	}

	key, err := h.service.CacheKey(c.Request.Context(), &q)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	middleware.RespondOK(c, CacheKeyResponse{CacheKey: key})
}
