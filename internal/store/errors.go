package store

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrSlotTaken           = errors.New("slot already taken")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
