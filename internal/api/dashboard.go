package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/hookrelay/internal/engine"
	"github.com/Priya8975/hookrelay/internal/hook"
	"github.com/Priya8975/hookrelay/internal/store"
	ws "github.com/Priya8975/hookrelay/internal/websocket"
)

// MetricsReader returns aggregated handler statistics.
type MetricsReader interface {
	GetRunMetrics(ctx context.Context) (*store.RunMetrics, error)
}

type DashboardHandler struct {
	registry *hook.Registry
	metrics  MetricsReader
	cb       *engine.CircuitBreaker
	hub      *ws.Hub
}

// NewDashboardHandler builds the dashboard endpoints. metrics and cb may be
// nil when Postgres or Redis are not configured.
func NewDashboardHandler(reg *hook.Registry, m MetricsReader, cb *engine.CircuitBreaker, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{registry: reg, metrics: m, cb: cb, hub: hub}
}

// Metrics returns aggregated handler metrics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	type metricsResponse struct {
		*store.RunMetrics
		WebSocketClients int `json:"websocket_clients"`
	}

	resp := metricsResponse{RunMetrics: &store.RunMetrics{}}
	if h.metrics != nil {
		m, err := h.metrics.GetRunMetrics(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get metrics")
			return
		}
		resp.RunMetrics = m
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}

// Handlers lists registered handlers with their circuit breaker state.
func (h *DashboardHandler) Handlers(w http.ResponseWriter, r *http.Request) {
	type handlerInfo struct {
		EventType      string                      `json:"event_type"`
		Name           string                      `json:"name"`
		Filtered       bool                        `json:"filtered"`
		CircuitBreaker *engine.CircuitBreakerState `json:"circuit_breaker,omitempty"`
	}

	result := []handlerInfo{}
	for _, reg := range h.registry.All() {
		info := handlerInfo{
			EventType: reg.EventType,
			Name:      reg.Name,
			Filtered:  reg.Filter != nil,
		}
		if h.cb != nil {
			st := h.cb.GetState(r.Context(), reg.Name)
			info.CircuitBreaker = &st
		}
		result = append(result, info)
	}

	respondJSON(w, http.StatusOK, result)
}
