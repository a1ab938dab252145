package errors

import (
	"errors"
	"fmt"
)

// Common error types for the admin console
var (
	// Configuration errors
	ErrMissingConfig = errors.New("missing configuration")

	// Authentication errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrLoginRequired    = errors.New("login required")
	ErrInvalidState     = errors.New("invalid state parameter")
	ErrInvalidNonce     = errors.New("invalid nonce")
	ErrRefreshFailed    = errors.New("token refresh failed")

	// Token exchange errors
	ErrAuthExchange = errors.New("backend token exchange failed")

	// Query layer errors
	ErrUnknownOperation   = errors.New("unknown operation")
	ErrDuplicateOperation = errors.New("operation already registered")
	ErrWrongKind          = errors.New("operation kind mismatch")
	ErrStoreClosed        = errors.New("store closed")

	// General errors
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrUnsupported  = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}
