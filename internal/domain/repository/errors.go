package repository

import "errors"

var ErrIdempotencyKeyConflict = errors.New("idempotency key conflicts with request")
var ErrAccountNotFound = errors.New("user account not found")
var ErrImageNotFound = errors.New("generated image not found")
