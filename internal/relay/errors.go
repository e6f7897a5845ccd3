package relay

import (
	"errors"
	"fmt"

	"github.com/npezzotti/go-dmrelay/internal/database"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrStorage        = errors.New("storage failure")
	ErrRoomResolution = errors.New("conversation resolution failed")
	ErrBadCredentials = errors.New("invalid handle or password")
)

// ValidationError reports the payload field that was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// storageErr lifts a store error into the relay taxonomy. Anything the store
// did not classify is a StorageFailure.
func storageErr(op string, err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, database.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
}
