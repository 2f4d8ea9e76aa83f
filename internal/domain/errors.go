package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrQueueFull               = errors.New("queue full")
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrStaleStatus             = errors.New("stored status already moved on")
)

// FieldError describes one rejected field of an admission payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned when an admission payload is malformed.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// QueueFullError is returned when admission hits the configured capacity.
type QueueFullError struct {
	Size int
	Max  int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("%s: %d/%d orders waiting", ErrQueueFull, e.Size, e.Max)
}

func (e *QueueFullError) Unwrap() error {
	return ErrQueueFull
}
