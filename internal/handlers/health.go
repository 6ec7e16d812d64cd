package handlers

import (
	"net/http"
	"time"

	"github.com/nahidhasan98/finetune-relay/internal/models"
)

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := &models.HealthResponse{
		Status:    "ok",
		Prompts:   h.pipeline.PromptCount(),
		Store:     h.status.StoreKind,
		Timestamp: time.Now().Unix(),
	}
	if h.status.Subscribers != nil {
		response.Subscribers = h.status.Subscribers()
	}

	h.writeJSON(w, response, http.StatusOK)
}
