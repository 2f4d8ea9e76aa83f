package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// StatusDetail carries the fields that change together with an order's status.
type StatusDetail struct {
	At            time.Time
	ActualSeconds int
	Reason        string
}

// Repository interfaces (Adapter/Postgres). Calls are synchronous; the
// scheduler logs failures and keeps its in-memory state authoritative.
type OrderRepository interface {
	InsertOrder(ctx context.Context, order *domain.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.Status, detail StatusDetail) error
	UpdateOrderPriority(ctx context.Context, orderID string, priority domain.Priority) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetCustomerOrders(ctx context.Context, customerID string) ([]*domain.Order, error)
}

// SnapshotStore keeps the last exported queue document (Adapter/Badger).
// Load returns nil and no error when nothing has been saved yet.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *domain.Snapshot) error
	Load(ctx context.Context) (*domain.Snapshot, error)
	Close() error
}
