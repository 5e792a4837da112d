package domain

import "errors"

// Error taxonomy for caller-facing operations. ErrConflict is recovered
// inside the delivery engine and never reaches the API layer; delivery
// failures are logged at the hub and never propagate at all.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
