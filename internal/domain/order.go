package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	ItemTypeBurger = "burger"
	CookWellDone   = "well_done"
)

const (
	baseEstimateSeconds     = 180
	perBurgerSeconds        = 60
	wellDoneSeconds         = 60
	heavyCustomizeSeconds   = 30
	heavyCustomizeThreshold = 5
	largeOrderItemThreshold = 10
	defaultCustomerID       = "anonymous"
	defaultPaymentStatus    = "pending"
)

var maintenanceOrderTypes = map[string]bool{
	"maintenance": true,
	"test":        true,
	"calibration": true,
}

// Order represents a machine order and its lifecycle timestamps
type Order struct {
	ID               string          `json:"order_id"`
	CustomerID       string          `json:"customer_id"`
	OrderType        string          `json:"order_type,omitempty"`
	Items            []OrderItem     `json:"items"`
	Priority         Priority        `json:"priority"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	EstimatedSeconds int             `json:"estimated_seconds"`
	ActualSeconds    int             `json:"actual_preparation_seconds,omitempty"`
	PaymentStatus    string          `json:"payment_status"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Reason           string          `json:"reason,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

// OrderItem represents one line of an order
type OrderItem struct {
	Product    string          `json:"product" validate:"required"`
	BurgerType string          `json:"burger_type,omitempty"`
	Quantity   int             `json:"quantity" validate:"gt=0"`
	CookLevel  string          `json:"cook_level,omitempty"`
	BunType    string          `json:"bun_type,omitempty"`
	PattyType  string          `json:"patty_type,omitempty"`
	Toppings   []string        `json:"toppings,omitempty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// OrderRequest is the raw admission payload accepted from any channel.
type OrderRequest struct {
	CustomerID    string         `json:"customer_id"`
	Items         []OrderItem    `json:"items" validate:"required,min=1,dive"`
	Priority      string         `json:"priority,omitempty"`
	VIP           bool           `json:"is_vip,omitempty"`
	Express       bool           `json:"is_express,omitempty"`
	OrderType     string         `json:"order_type,omitempty"`
	PaymentStatus string         `json:"payment_status,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate applies admission rules; it never mutates the request.
// PriceScale is the number of decimal places stored for money amounts.
const PriceScale = 2

func (r OrderRequest) Validate() error {
	var out ValidationErrors

	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate order request: %w", err)
		}
		for _, fe := range fieldErrs {
			out = append(out, FieldError{Field: fieldPath(fe.Namespace()), Message: fieldMessage(fe)})
		}
	}

	for i, item := range r.Items {
		if item.UnitPrice.IsNegative() {
			out = append(out, FieldError{
				Field:   fmt.Sprintf("items[%d].unit_price", i),
				Message: "unit price must not be negative",
			})
		}
		if !item.UnitPrice.Equal(item.UnitPrice.Round(PriceScale)) {
			out = append(out, FieldError{
				Field:   fmt.Sprintf("items[%d].unit_price", i),
				Message: fmt.Sprintf("unit price must have at most %d decimal places", PriceScale),
			})
		}
	}

	if len(out) > 0 {
		return out
	}
	return nil
}

func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "order must contain at least 1 item"
	case "gt":
		return "quantity must be a positive integer"
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}

// NewOrder validates the request and builds a pending order. The id is
// assigned by the caller so it can be checked against the live index.
func NewOrder(req OrderRequest, now time.Time) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		customerID = defaultCustomerID
	}
	payment := req.PaymentStatus
	if payment == "" {
		payment = defaultPaymentStatus
	}

	items := make([]OrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = item
		items[i].Toppings = append([]string(nil), item.Toppings...)
	}

	order := &Order{
		CustomerID:    customerID,
		OrderType:     req.OrderType,
		Items:         items,
		Status:        StatusPending,
		CreatedAt:     now,
		PaymentStatus: payment,
		Metadata:      copyMetadata(req.Metadata),
	}
	order.Priority = ResolvePriority(req)
	order.EstimatedSeconds = EstimatePreparation(items)
	order.TotalAmount = CalculateTotal(items)

	return order, nil
}

// ResolvePriority applies: explicit tag, VIP, express, large order, maintenance type, default.
func ResolvePriority(req OrderRequest) Priority {
	if p, ok := ParsePriority(req.Priority); ok {
		return p
	}
	if req.VIP || req.Express {
		return PriorityHigh
	}
	if TotalQuantity(req.Items) > largeOrderItemThreshold {
		return PriorityLow
	}
	if maintenanceOrderTypes[strings.ToLower(req.OrderType)] {
		return PriorityMaintenance
	}
	return PriorityNormal
}

// EstimatePreparation returns the estimated preparation time in seconds.
func EstimatePreparation(items []OrderItem) int {
	burgers := 0
	wellDone := false
	heavy := false
	for _, item := range items {
		if item.Product == ItemTypeBurger {
			burgers += item.Quantity
		}
		if item.CookLevel == CookWellDone {
			wellDone = true
		}
		if len(item.Toppings) > heavyCustomizeThreshold {
			heavy = true
		}
	}

	total := baseEstimateSeconds + burgers*perBurgerSeconds
	if wellDone {
		total += wellDoneSeconds
	}
	if heavy {
		total += heavyCustomizeSeconds
	}
	return total
}

func TotalQuantity(items []OrderItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func CalculateTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// BurgerTypes returns the set of burger subtypes in the order.
func (o *Order) BurgerTypes() map[string]struct{} {
	types := make(map[string]struct{})
	for _, item := range o.Items {
		if item.Product == ItemTypeBurger && item.BurgerType != "" {
			types[item.BurgerType] = struct{}{}
		}
	}
	return types
}

// SharesBurgerType reports whether both orders contain a common burger subtype.
func (o *Order) SharesBurgerType(other *Order) bool {
	if other == nil {
		return false
	}
	theirs := other.BurgerTypes()
	for t := range o.BurgerTypes() {
		if _, ok := theirs[t]; ok {
			return true
		}
	}
	return false
}

// NeedsIngredient reports whether any item uses the ingredient as a topping, bun or patty.
func (o *Order) NeedsIngredient(ingredient string) bool {
	for _, item := range o.Items {
		if item.BunType == ingredient || item.PattyType == ingredient {
			return true
		}
		for _, topping := range item.Toppings {
			if topping == ingredient {
				return true
			}
		}
	}
	return false
}

// TransitionTo transitions the order to a new status
func (o *Order) TransitionTo(newStatus Status, at time.Time, reason string) error {
	if !o.CanTransitionTo(newStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, newStatus)
	}

	o.Status = newStatus
	switch newStatus {
	case StatusProcessing:
		o.StartedAt = &at
	case StatusServed:
		o.CompletedAt = &at
		if o.StartedAt != nil {
			o.ActualSeconds = int(at.Sub(*o.StartedAt) / time.Second)
		}
	case StatusFailed:
		o.FailedAt = &at
		o.Reason = reason
	case StatusCancelled:
		o.CancelledAt = &at
		o.Reason = reason
	}
	return nil
}

// CanTransitionTo checks if the order can transition to the new status
func (o *Order) CanTransitionTo(newStatus Status) bool {
	validTransitions := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusCancelled},
		StatusProcessing: {StatusServed, StatusFailed, StatusCancelled},
		StatusServed:     {},
		StatusFailed:     {},
		StatusCancelled:  {},
	}

	for _, s := range validTransitions[o.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// ReturnToQueue undoes a dispatch the machine never accepted: the order is
// pending again and loses its start time.
func (o *Order) ReturnToQueue() error {
	if o.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, StatusPending)
	}
	o.Status = StatusPending
	o.StartedAt = nil
	return nil
}

// FinishedAt returns the terminal timestamp, or nil while the order is live.
func (o *Order) FinishedAt() *time.Time {
	switch o.Status {
	case StatusServed:
		return o.CompletedAt
	case StatusFailed:
		return o.FailedAt
	case StatusCancelled:
		return o.CancelledAt
	default:
		return nil
	}
}

// Clone returns a deep copy safe to hand out of a locked section.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = make([]OrderItem, len(o.Items))
	for i, item := range o.Items {
		c.Items[i] = item
		c.Items[i].Toppings = append([]string(nil), item.Toppings...)
	}
	c.StartedAt = copyTime(o.StartedAt)
	c.CompletedAt = copyTime(o.CompletedAt)
	c.FailedAt = copyTime(o.FailedAt)
	c.CancelledAt = copyTime(o.CancelledAt)
	c.Metadata = copyMetadata(o.Metadata)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
