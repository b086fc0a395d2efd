package domain

import "errors"

var (
	// ErrInvalidFormat is returned when a payload matches no known shape.
	ErrInvalidFormat = errors.New("invalid qr format")
	// ErrExpired is returned when a payload is older than the allowed age.
	ErrExpired = errors.New("qr code expired")
	// ErrUnauthorized is returned when a code was issued for another employee.
	ErrUnauthorized = errors.New("qr code issued for another employee")
	// ErrDuplicateToday is returned when the code was already used today.
	ErrDuplicateToday = errors.New("qr code already used today")
	// ErrAuth is returned when the backend rejects the bearer token.
	ErrAuth = errors.New("authentication rejected, please log in again")
	// ErrSubmissionFailed is returned when every submission attempt failed.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrNetwork is returned on transport-level failures.
	ErrNetwork = errors.New("network error")
	// ErrNoSession is returned when no user is logged in.
	ErrNoSession = errors.New("not logged in")
)

// IsDecodeError reports whether err came from payload decoding rather than the network
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrExpired)
}
