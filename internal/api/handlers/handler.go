// handler.go — основной обработчик API Submission Module.
// Объединяет health endpoints и доменные обработчики отправок,
// делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/arturkryukov/docflow/submission-module/internal/service"
)

// APIHandler — основной обработчик API Submission Module.
type APIHandler struct {
	health      *HealthHandler
	submissions *service.SubmissionService
	maxFileSize int64
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// maxFileSize — предел размера PDF-формы в байтах (SM_MAX_FILE_SIZE).
func NewAPIHandler(
	health *HealthHandler,
	submissions *service.SubmissionService,
	maxFileSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		submissions: submissions,
		maxFileSize: maxFileSize,
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
