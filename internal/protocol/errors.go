package protocol

import "errors"

// Codec errors for the sign wire protocol.
//
// Decode errors are graded by severity: ErrFraming and ErrChecksumMismatch
// kill the frame (the connection may continue), ErrUnknownCommand is
// loggable and ignorable. ErrFieldOutOfRange is encoder-side only - the
// codec rejects out-of-domain fields rather than clamping them, so caller
// bugs surface instead of reaching device firmware.
var (
	// ErrFraming is returned when a frame's STX/ETX markers or declared
	// length do not match the buffer.
	ErrFraming = errors.New("protocol: bad framing")

	// ErrChecksumMismatch is returned when the recomputed checksum
	// disagrees with the frame's checksum byte.
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")

	// ErrUnknownCommand is returned for unrecognised command bytes.
	// Callers may log and continue; the frame is otherwise well-formed.
	ErrUnknownCommand = errors.New("protocol: unknown command")

	// ErrInvalidData is returned when a known command's DATA section does
	// not match its layout.
	ErrInvalidData = errors.New("protocol: invalid command data")

	// ErrFieldOutOfRange is returned by Encode when a command field
	// violates its domain (room number outside 1-100, speed outside 1-6, ...).
	ErrFieldOutOfRange = errors.New("protocol: field out of range")
)
