package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/upb/inference-gateway/services"
	"github.com/upb/inference-gateway/services/router"
	"github.com/upb/inference-gateway/utils"
)

// RouteRequest is the inbound routing request.
type RouteRequest struct {
	Prompt   string       `json:"prompt" validate:"required"`
	Category string       `json:"category,omitempty"`
	Options  RouteOptions `json:"options,omitempty"`
}

// RouteOptions mirrors the router's caller-facing constraints.
type RouteOptions struct {
	ForceLocal     bool     `json:"force_local,omitempty"`
	ForcePrivate   bool     `json:"force_private,omitempty"`
	MaxCost        *float64 `json:"max_cost,omitempty" validate:"omitempty,gte=0"`
	PinnedIdentity string   `json:"pinned_identity,omitempty"`
	NoEscalate     bool     `json:"no_escalate,omitempty"`
}

// RouteService defines the routing operation the handler needs.
type RouteService interface {
	Route(ctx context.Context, prompt, category string, opts router.Options) router.Result
}

// RouteHandler handles routing HTTP requests.
type RouteHandler struct {
	service RouteService
	logger  *zap.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(service RouteService, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{
		service: service,
		logger:  logger,
	}
}

// HandleRoute handles POST /api/v1/route.
func (h *RouteHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)

	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	result := h.service.Route(ctx, req.Prompt, req.Category, router.Options{
		ForceLocal:     req.Options.ForceLocal,
		ForcePrivate:   req.Options.ForcePrivate,
		MaxCost:        req.Options.MaxCost,
		PinnedIdentity: req.Options.PinnedIdentity,
		NoEscalate:     req.Options.NoEscalate,
	})

	if err := utils.WriteJSON(w, statusFor(result), result); err != nil {
		h.logger.Error("failed to write route response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// statusFor maps the routing result onto an HTTP status. The body always
// carries the structured result either way.
func statusFor(res router.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch services.ErrorType(res.ErrorType) {
	case services.ErrorTypeNoCandidates:
		return http.StatusServiceUnavailable
	case services.ErrorTypeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// HandleValidationError handles validation errors from request parsing.
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
