package transport

import "errors"

// Transport errors.
var (
	// ErrServerClosed is returned for operations on a stopped transport.
	ErrServerClosed = errors.New("transport: server closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrFrameTooLarge is returned when an inbound frame declares a
	// length beyond the protocol maximum.
	ErrFrameTooLarge = errors.New("transport: frame too large")

	// ErrInvalidPayload is returned when an MQTT payload is neither a
	// raw frame nor a hex-encoded one.
	ErrInvalidPayload = errors.New("transport: invalid payload")

	// ErrRetriesExhausted is returned when an operation fails on every
	// attempt.
	ErrRetriesExhausted = errors.New("transport: retries exhausted")
)
