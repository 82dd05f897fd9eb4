// Package sentinel holds the storage-level facts ledger stores report.
// Services translate them into domain-errors codes at their boundary; nothing
// above a service should see a sentinel.
package sentinel

import "errors"

var (
	// ErrNotFound means no record exists under the key.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a record already exists under the key.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyUsed means a one-shot record was already consumed.
	ErrAlreadyUsed = errors.New("already used")
)
