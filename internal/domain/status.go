package domain

import "strings"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusServed     Status = "served"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusServed || s == StatusFailed || s == StatusCancelled
}

// Priority is the dequeue tier of an order. Lower values dequeue first.
type Priority int

const (
	PriorityHigh        Priority = 0
	PriorityNormal      Priority = 1
	PriorityLow         Priority = 2
	PriorityMaintenance Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// ParsePriority resolves an explicit priority tag, case-insensitively.
func ParsePriority(tag string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "high":
		return PriorityHigh, true
	case "normal":
		return PriorityNormal, true
	case "low":
		return PriorityLow, true
	case "maintenance":
		return PriorityMaintenance, true
	default:
		return 0, false
	}
}

// Demote moves p one tier down, never past LOW. Maintenance orders keep their tier.
func (p Priority) Demote() Priority {
	if p >= PriorityLow {
		return p
	}
	return p + 1
}

const (
	ReasonProcessingTimeout = "processing timeout"
	ReasonQueueTimeout      = "timeout_in_queue"
	ReasonCustomerCancelled = "customer_cancelled"
	ReasonMaintenance       = "maintenance"
)
