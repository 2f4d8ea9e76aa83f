package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

const customerOrdersLimit = 100

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) InsertOrder(ctx context.Context, order *domain.Order) error {
	metadata, err := marshalMetadata(order.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Insert order
	query := `
		INSERT INTO orders (id, customer_id, order_type, priority, status, estimated_seconds,
		                    payment_status, total_amount, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9, $10, $10)
	`
	_, err = tx.Exec(ctx, query,
		order.ID, order.CustomerID, order.OrderType, int(order.Priority), string(order.Status),
		order.EstimatedSeconds, order.PaymentStatus, order.TotalAmount.String(), metadata, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	// Insert order items
	itemQuery := `
		INSERT INTO order_items (order_id, position, product, burger_type, quantity,
		                         cook_level, bun_type, patty_type, toppings, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::text::numeric)
	`
	for i, item := range order.Items {
		toppings := item.Toppings
		if toppings == nil {
			toppings = []string{}
		}
		_, err = tx.Exec(ctx, itemQuery,
			order.ID, i, item.Product, item.BurgerType, item.Quantity,
			item.CookLevel, item.BunType, item.PattyType, toppings, item.UnitPrice.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	// Log initial status
	if err := logStatus(ctx, tx, order.ID, order.Status, "admitted", order.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// statusColumns maps a status to the timestamp column it stamps.
var statusColumns = map[domain.Status]string{
	domain.StatusProcessing: "started_at",
	domain.StatusServed:     "completed_at",
	domain.StatusFailed:     "failed_at",
	domain.StatusCancelled:  "cancelled_at",
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, orderID string, status domain.Status, detail interfaces.StatusDetail) error {
	at := detail.At
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := updateStatusQuery(status)
	tag, err := tx.Exec(ctx, query, string(status), detail.ActualSeconds, detail.Reason, at, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var stored string
		if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&stored); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
			}
			return fmt.Errorf("failed to read order status: %w", err)
		}
		return fmt.Errorf("%w: %s is %s, not writing %s", domain.ErrStaleStatus, orderID, stored, status)
	}

	if err := logStatus(ctx, tx, orderID, status, detail.Reason, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// openStatusGuard keeps a late write from overwriting a finalized order.
const openStatusGuard = "status IN ('pending', 'processing')"

func updateStatusQuery(status domain.Status) string {
	set := "status = $1, actual_seconds = $2, reason = $3, updated_at = $4"
	if column, ok := statusColumns[status]; ok {
		set += ", " + column + " = $4"
	}
	if status == domain.StatusPending {
		set = "status = $1, actual_seconds = $2, reason = $3, started_at = NULL, updated_at = $4"
	}
	return "UPDATE orders SET " + set + " WHERE id = $5 AND " + openStatusGuard
}

func (r *orderRepository) UpdateOrderPriority(ctx context.Context, orderID string, priority domain.Priority) error {
	query := `UPDATE orders SET priority = $1, updated_at = now() WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, int(priority), orderID)
	if err != nil {
		return fmt.Errorf("failed to update order priority: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	return nil
}

const orderColumns = `
	id, customer_id, order_type, priority, status, estimated_seconds, actual_seconds,
	payment_status, total_amount::text, reason, metadata, created_at,
	started_at, completed_at, failed_at, cancelled_at`

func (r *orderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if err := r.loadItems(ctx, map[string]*domain.Order{order.ID: order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetCustomerOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, customerID, customerOrdersLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	byID := make(map[string]*domain.Order)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
		byID[order.ID] = order
	}
	rows.Close()

	if err := r.loadItems(ctx, byID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orders map[string]*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	for id := range orders {
		ids = append(ids, id)
	}

	query := `
		SELECT order_id, product, burger_type, quantity, cook_level, bun_type, patty_type,
		       toppings, unit_price::text
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			price   string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.Product, &item.BurgerType, &item.Quantity, &item.CookLevel,
			&item.BunType, &item.PattyType, &item.Toppings, &price); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("failed to parse unit price %q: %w", price, err)
		}
		if order, ok := orders[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	return nil
}

func scanOrder(row Row) (*domain.Order, error) {
	var (
		order    domain.Order
		priority int
		status   string
		total    string
		metadata []byte
	)
	err := row.Scan(
		&order.ID, &order.CustomerID, &order.OrderType, &priority, &status, &order.EstimatedSeconds,
		&order.ActualSeconds, &order.PaymentStatus, &total, &order.Reason, &metadata, &order.CreatedAt,
		&order.StartedAt, &order.CompletedAt, &order.FailedAt, &order.CancelledAt,
	)
	if err != nil {
		return nil, err
	}

	order.Priority = domain.Priority(priority)
	order.Status = domain.Status(status)
	if order.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("failed to parse total amount %q: %w", total, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &order.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &order, nil
}

func logStatus(ctx context.Context, tx Tx, orderID string, status domain.Status, detail string, at time.Time) error {
	query := `
		INSERT INTO order_status_log (order_id, status, detail, changed_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, query, orderID, string(status), detail, at); err != nil {
		return fmt.Errorf("failed to log status: %w", err)
	}
	return nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, nil
}
