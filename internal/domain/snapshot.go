package domain

import "time"

// Snapshot is the export document for the live queue.
type Snapshot struct {
	Timestamp           time.Time     `json:"timestamp"`
	Queued              []QueuedOrder `json:"queued"`
	ProcessingOrder     *Order        `json:"processing_order,omitempty"`
	CompletedTodayCount int           `json:"completed_today_count"`
	FailedTodayCount    int           `json:"failed_today_count"`
	Stats               Stats         `json:"stats"`
}

// QueuedOrder is a queue entry with the time its heap position was taken.
type QueuedOrder struct {
	Order    *Order    `json:"order"`
	QueuedAt time.Time `json:"queued_at"`
}
