package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

type QueueHandler struct {
	service interfaces.SchedulerService
	logger  logger.Logger
}

func NewQueueHandler(service interfaces.SchedulerService, logger logger.Logger) *QueueHandler {
	return &QueueHandler{
		service: service,
		logger:  logger,
	}
}

type CountResponse struct {
	Count int `json:"count"`
}

func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.QueueStatus())
}

func (h *QueueHandler) Export(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.Export())
}

func (h *QueueHandler) Import(w http.ResponseWriter, r *http.Request) {
	var snapshot domain.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	imported, err := h.service.Import(r.Context(), &snapshot)
	if err != nil {
		h.logger.Warn("queue_import_rejected", "Queue import rejected", r.Header.Get(requestIDHeader), map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	respondJSON(w, http.StatusOK, CountResponse{Count: imported})
}

func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	cleared := h.service.ClearQueue(r.Context(), r.URL.Query().Get("reason"))
	respondJSON(w, http.StatusOK, CountResponse{Count: cleared})
}

func (h *QueueHandler) Shortage(w http.ResponseWriter, r *http.Request) {
	var msg interfaces.ShortageMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	ingredient := strings.TrimSpace(msg.Ingredient)
	if ingredient == "" {
		respondError(w, "Validation failed", http.StatusBadRequest, []domain.FieldError{
			{Field: "ingredient", Message: "is required"},
		})
		return
	}

	demoted := h.service.NotifyShortage(r.Context(), ingredient)
	respondJSON(w, http.StatusOK, CountResponse{Count: demoted})
}

func (h *QueueHandler) MachineReady(w http.ResponseWriter, r *http.Request) {
	h.service.SlotReady(r.Context())
	w.WriteHeader(http.StatusAccepted)
}
