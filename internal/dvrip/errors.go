package dvrip

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrAuthFailed is fatal for the session; the caller must reconnect
	// before retrying anything else.
	ErrAuthFailed = errors.New("dvrip: authentication failed")

	// ErrProtocol marks a malformed or unexpected camera response.
	ErrProtocol = errors.New("dvrip: malformed response")

	// ErrTimeout marks an attempt that exceeded its deadline.
	ErrTimeout = errors.New("dvrip: operation timed out")

	// ErrSessionClosed is returned for requests on a dead session.
	ErrSessionClosed = errors.New("dvrip: session closed")
)

// IsTransient reports whether err is worth a bounded retry on a fresh
// session. Auth and protocol errors are not: repeating them buys nothing.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrProtocol) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrSessionClosed) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// timeoutErr normalizes deadline failures into ErrTimeout so callers can
// match on the taxonomy instead of net internals.
func timeoutErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}
