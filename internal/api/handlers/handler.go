// handler.go — основной обработчик API Search Bridge.
// Объединяет обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bigkaa/search-bridge/internal/repository"
	"github.com/bigkaa/search-bridge/internal/service"
)

// APIHandler — основной обработчик API Search Bridge.
type APIHandler struct {
	health      *HealthHandler
	dispatcher  *service.Dispatcher
	groups      repository.GroupMappingRepository
	items       repository.ItemMappingRepository
	memberships repository.MembershipRepository
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	dispatcher *service.Dispatcher,
	groups repository.GroupMappingRepository,
	items repository.ItemMappingRepository,
	memberships repository.MembershipRepository,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		dispatcher:  dispatcher,
		groups:      groups,
		items:       items,
		memberships: memberships,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
