package sentinel

import "errors"

// Sentinel dependency errors. Stores and backends return these (optionally
// wrapped) so services translate them into domain errors exactly once.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrCorrupted    = errors.New("content does not match its identifier")
	ErrUnavailable  = errors.New("unavailable")
)
