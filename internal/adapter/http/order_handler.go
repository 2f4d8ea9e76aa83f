package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

type OrderHandler struct {
	service interfaces.SchedulerService
	logger  logger.Logger
}

func NewOrderHandler(service interfaces.SchedulerService, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

type CancelResponse struct {
	OrderID   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
}

type OutcomeRequest struct {
	Reason string `json:"reason"`
}

type OutcomeResponse struct {
	OrderID  string `json:"order_id"`
	Accepted bool   `json:"accepted"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	result, err := h.service.Submit(r.Context(), req)
	if err != nil {
		var verrs domain.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			respondError(w, "Validation failed", http.StatusBadRequest, verrs)
		case errors.Is(err, domain.ErrQueueFull):
			respondError(w, err.Error(), http.StatusServiceUnavailable, nil)
		default:
			h.logger.Error("order_creation_failed", "Failed to create order", r.Header.Get(requestIDHeader), nil, err)
			respondError(w, "Internal server error", http.StatusInternalServerError, nil)
		}
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.service.OrderStatus(r.Context(), r.PathValue("id"))
	if !ok {
		respondError(w, "Order not found", http.StatusNotFound, nil)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.service.Cancel(r.Context(), id, r.URL.Query().Get("reason")) {
		respondError(w, "Order not found or already finished", http.StatusNotFound, nil)
		return
	}
	respondJSON(w, http.StatusOK, CancelResponse{OrderID: id, Cancelled: true})
}

func (h *OrderHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.service.Complete(r.Context(), id) {
		respondError(w, "Order is not being processed", http.StatusConflict, nil)
		return
	}
	respondJSON(w, http.StatusOK, OutcomeResponse{OrderID: id, Accepted: true})
}

func (h *OrderHandler) FailOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req OutcomeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid request body", http.StatusBadRequest, nil)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "machine_error"
	}

	if !h.service.Fail(r.Context(), id, req.Reason) {
		respondError(w, "Order is not being processed", http.StatusConflict, nil)
		return
	}
	respondJSON(w, http.StatusOK, OutcomeResponse{OrderID: id, Accepted: true})
}

func (h *OrderHandler) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.service.CustomerOrders(r.Context(), r.PathValue("id"))
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}
