package sign

import "errors"

// Sign domain errors.
var (
	// ErrNotFound is returned when a device identifier has no provisioned sign.
	ErrNotFound = errors.New("sign: not found")

	// ErrExists is returned when provisioning a device identifier that is
	// already registered.
	ErrExists = errors.New("sign: already exists")

	// ErrInvalidDeviceID is returned for identifiers outside the 8-20
	// alphanumeric character format.
	ErrInvalidDeviceID = errors.New("sign: invalid device id")

	// ErrInvalidProtocolVersion is returned for unknown protocol versions.
	ErrInvalidProtocolVersion = errors.New("sign: invalid protocol version")

	// ErrInvalidName is returned for empty or oversized sign names.
	ErrInvalidName = errors.New("sign: invalid name")
)
