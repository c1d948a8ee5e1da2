// Package apperr defines the error taxonomy shared by stores, services and
// HTTP handlers. Callers wrap these with fmt.Errorf("...: %w", ...) and test
// with errors.Is.
package apperr

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrAuth covers invalid credentials, duplicate accounts and rejected
	// credential formats.
	ErrAuth = errors.New("authentication failed")
	// ErrNotFound is returned when a profile, article or session is absent
	// and the operation cannot express that as a nil result.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks a transient backend failure (network, timeout).
	ErrUnavailable = errors.New("backend unavailable")
	// ErrInvalid marks caller input rejected before any write.
	ErrInvalid = errors.New("invalid input")
	// ErrForbidden is returned when the caller does not own the record.
	ErrForbidden = errors.New("forbidden")
)

// Backend classifies an error coming from the document store. Network and
// timeout failures are wrapped with ErrUnavailable; anything else is returned
// unchanged.
func Backend(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}
