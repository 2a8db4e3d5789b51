package engine

import "errors"

// Engine errors.
var (
	// ErrNoMQTTTransport is returned when a server-initiated connect is
	// requested but no MQTT transport is attached.
	ErrNoMQTTTransport = errors.New("engine: mqtt transport not attached")

	// ErrNotProvisioned is returned when an operation targets a device
	// identifier with no sign record.
	ErrNotProvisioned = errors.New("engine: sign not provisioned")
)
