package domain

import "errors"

// Sentinel errors shared across the service. Callers match with errors.Is;
// wrap with fmt.Errorf("...: %w", ...) to add context.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)
