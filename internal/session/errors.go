package session

import "errors"

// Session errors.
var (
	// ErrSessionNotReady is returned when a command is dispatched before
	// the handshake has completed.
	ErrSessionNotReady = errors.New("session: not ready")

	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("session: closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrHandshakeTimeout is the close reason when no identity arrives
	// within the handshake window.
	ErrHandshakeTimeout = errors.New("session: handshake timeout")

	// ErrIdentityRejected is the close reason when the device's identity
	// fails validation or is not provisioned.
	ErrIdentityRejected = errors.New("session: identity rejected")

	// ErrLivenessLost is the close reason when no heartbeat arrives
	// within the liveness window.
	ErrLivenessLost = errors.New("session: liveness lost")

	// ErrEvicted is the close reason when a newer session for the same
	// device identity replaces this one.
	ErrEvicted = errors.New("session: evicted by newer connection")

	// ErrUnexpectedFrame is returned for frames that are not valid in the
	// session's current state.
	ErrUnexpectedFrame = errors.New("session: unexpected frame for state")

	// ErrNotConnected is returned by the registry when no active session
	// exists for a device.
	ErrNotConnected = errors.New("session: device not connected")
)
