package session

import "errors"

var (
	// ErrConnectFailure means the socket could not be established.
	ErrConnectFailure = errors.New("session: connect failed")
	ErrClosed         = errors.New("session: connection closed")
	// ErrQueueExhausted is returned by awaits once the read loop has ended
	// and every delivered frame has been consumed.
	ErrQueueExhausted  = errors.New("session: frame queue exhausted")
	ErrServerError     = errors.New("session: server error")
	ErrUnexpectedFrame = errors.New("session: unexpected frame")
	ErrTimeout         = errors.New("session: timed out waiting for frame")
	ErrRequestInFlight = errors.New("session: request already in flight")

	ErrInvalidUserOrPass = errors.New("session: invalid username or password")
	ErrNoLoginSaved      = errors.New("session: no login saved")
	ErrNetwork           = errors.New("session: network error")
)

// ErrSessionRejected means the server did not accept a cached session key.
var ErrSessionRejected = errors.New("session: session key rejected")
