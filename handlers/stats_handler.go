package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/inference-gateway/models"
	"github.com/upb/inference-gateway/services/breaker"
	"github.com/upb/inference-gateway/services/cache"
	"github.com/upb/inference-gateway/services/usage"
	"github.com/upb/inference-gateway/utils"
)

// UsageReader exposes the in-memory usage ledger.
type UsageReader interface {
	Snapshot() []usage.IdentityUsage
}

// BreakerReader exposes per-provider circuit state.
type BreakerReader interface {
	Snapshots() []breaker.Snapshot
}

// CacheReader exposes response-cache counters.
type CacheReader interface {
	Stats() cache.Stats
}

// ModelLister exposes the configured backend identities.
type ModelLister interface {
	List() []models.BackendModel
}

// StatsResponse aggregates the gateway's runtime counters.
type StatsResponse struct {
	Usage    []usage.IdentityUsage `json:"usage"`
	Breakers []breaker.Snapshot    `json:"breakers"`
	Cache    cache.Stats           `json:"cache"`
}

// ModelsResponse lists the identities the gateway can route to.
type ModelsResponse struct {
	Models []models.BackendModel `json:"models"`
	Count  int                   `json:"count"`
}

// StatsHandler handles stats and model-listing HTTP requests
type StatsHandler struct {
	usage    UsageReader
	breakers BreakerReader
	cache    CacheReader
	registry ModelLister
	logger   *zap.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(u UsageReader, b BreakerReader, c CacheReader, r ModelLister, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		usage:    u,
		breakers: b,
		cache:    c,
		registry: r,
		logger:   logger,
	}
}

// HandleStats handles GET /api/v1/stats
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	response := StatsResponse{
		Usage:    h.usage.Snapshot(),
		Breakers: h.breakers.Snapshots(),
		Cache:    h.cache.Stats(),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write stats response", zap.Error(err))
	}
}

// HandleListModels handles GET /api/v1/models
func (h *StatsHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	configured := h.registry.List()

	response := ModelsResponse{
		Models: configured,
		Count:  len(configured),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write models response", zap.Error(err))
	}
}
