package http

import (
	"net/http"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

// NewRouter wires every route and the middleware chain. metrics may be nil.
func NewRouter(service interfaces.SchedulerService, metrics http.Handler, logger logger.Logger) http.Handler {
	orders := NewOrderHandler(service, logger)
	queue := NewQueueHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", orders.CreateOrder)
	mux.HandleFunc("GET /orders/{id}", orders.GetOrder)
	mux.HandleFunc("DELETE /orders/{id}", orders.CancelOrder)
	mux.HandleFunc("POST /orders/{id}/complete", orders.CompleteOrder)
	mux.HandleFunc("POST /orders/{id}/fail", orders.FailOrder)
	mux.HandleFunc("GET /customers/{id}/orders", orders.CustomerOrders)

	mux.HandleFunc("GET /queue/status", queue.Status)
	mux.HandleFunc("GET /queue/export", queue.Export)
	mux.HandleFunc("POST /queue/import", queue.Import)
	mux.HandleFunc("POST /queue/clear", queue.Clear)
	mux.HandleFunc("POST /inventory/shortage", queue.Shortage)
	mux.HandleFunc("POST /machine/ready", queue.MachineReady)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Apply middleware
	handler := LoggingMiddleware(logger)(mux)
	handler = RecoveryMiddleware(logger)(handler)
	return handler
}
