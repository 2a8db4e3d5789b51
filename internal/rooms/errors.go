package rooms

import "errors"

// Allocator errors.
var (
	// ErrRoomOutOfRange is returned when a room number falls outside 1-100.
	ErrRoomOutOfRange = errors.New("rooms: room number out of range")
)
