package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// ErrRequeue asks a consumer to put the message back on its queue.
var ErrRequeue = errors.New("requeue message")

// SchedulerService is the surface exposed to the API, messaging and hardware adapters.
type SchedulerService interface {
	ProcessingReporter

	Submit(ctx context.Context, req domain.OrderRequest) (*SubmitResult, error)
	Cancel(ctx context.Context, orderID, reason string) bool
	NotifyShortage(ctx context.Context, ingredient string) int
	ClearQueue(ctx context.Context, reason string) int

	QueueStatus() QueueStatus
	OrderStatus(ctx context.Context, orderID string) (*domain.Order, bool)
	CustomerOrders(ctx context.Context, customerID string) []*domain.Order

	Export() *domain.Snapshot
	Import(ctx context.Context, snapshot *domain.Snapshot) (int, error)
}

// Responses
type SubmitResult struct {
	OrderID       string `json:"order_id"`
	QueuePosition int    `json:"queue_position"`
	EstimatedWait int    `json:"estimated_wait"`
	Status        string `json:"status"`
}

type QueueStatus struct {
	QueueSize        int          `json:"queue_size"`
	ProcessingCount  int          `json:"processing"`
	WaitingCustomers int          `json:"waiting_customers"`
	EstimatedWait    int          `json:"estimated_wait_time"`
	NextOrderID      string       `json:"next_order_id,omitempty"`
	Stats            domain.Stats `json:"stats"`
	AsOf             time.Time    `json:"timestamp"`
}
