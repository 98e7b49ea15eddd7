package errx

import (
	"context"
	"errors"
)

// WrapStorage normalises SQL backend failures. Context cancellation is kept
// visible so callers can tell an aborted request from a broken store.
func WrapStorage(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.Canceled) {
		return New(err, 499, "request cancelled")
	}
	return Storage(err)
}
