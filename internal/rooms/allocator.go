package rooms

import (
	"fmt"
	"sync"
)

// Room number ranges. Urgent messages occupy the low slots so firmware
// gives them display priority.
const (
	// UrgentMin and UrgentMax bound the urgent range.
	UrgentMin = 1
	UrgentMax = 5

	// NormalMin and NormalMax bound the normal range.
	NormalMin = 6
	NormalMax = 100
)

// Allocator hands out room numbers per device.
//
// Each device owns an independent slot space: urgent messages draw from
// rooms 1-5, normal messages from 6-100. Allocation is lowest-free-first.
// When a range is exhausted, Allocate reuses the range's first room and
// reports the reuse, so callers can overwrite the oldest content rather
// than fail the send.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Allocator struct {
	mu sync.Mutex

	// used maps deviceID to the set of occupied room numbers.
	used map[string]map[int]struct{}
}

// NewAllocator creates an empty room allocator.
func NewAllocator() *Allocator {
	return &Allocator{used: make(map[string]map[int]struct{})}
}

// Allocate reserves the lowest free room in the device's urgent or normal
// range.
//
// When every room in the range is occupied, the range's first room is
// returned with forced=true; the caller overwrites whatever that room held
// and the room stays occupied.
//
// Parameters:
//   - deviceID: The device whose slot space to draw from
//   - urgent: Draw from the urgent range (1-5) instead of normal (6-100)
//
// Returns:
//   - int: The reserved room number
//   - bool: True when the range was full and the first room was reused
func (a *Allocator) Allocate(deviceID string, urgent bool) (int, bool) {
	low, high := NormalMin, NormalMax
	if urgent {
		low, high = UrgentMin, UrgentMax
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rooms := a.used[deviceID]
	if rooms == nil {
		rooms = make(map[int]struct{})
		a.used[deviceID] = rooms
	}

	for room := low; room <= high; room++ {
		if _, taken := rooms[room]; !taken {
			rooms[room] = struct{}{}
			return room, false
		}
	}

	// Range exhausted: reuse the first room, overwriting its content.
	return low, true
}

// Mark records a specific room as occupied for a device. It is used when
// re-sending to a known slot, and is idempotent.
//
// Returns ErrRoomOutOfRange if the room is outside 1-100.
func (a *Allocator) Mark(deviceID string, room int) error {
	if room < UrgentMin || room > NormalMax {
		return fmt.Errorf("%w: %d", ErrRoomOutOfRange, room)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rooms := a.used[deviceID]
	if rooms == nil {
		rooms = make(map[int]struct{})
		a.used[deviceID] = rooms
	}
	rooms[room] = struct{}{}
	return nil
}

// Release frees a room for a device. Releasing a room that is not
// occupied is a no-op, so delete confirmations can be applied blindly.
func (a *Allocator) Release(deviceID string, room int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rooms := a.used[deviceID]
	if rooms == nil {
		return
	}
	delete(rooms, room)
	if len(rooms) == 0 {
		delete(a.used, deviceID)
	}
}

// ReleaseAll frees every room for a device. It backs the delete-all
// command and session teardown for unprovisioned devices.
func (a *Allocator) ReleaseAll(deviceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.used, deviceID)
}

// UsedRooms returns the occupied room numbers for a device in ascending
// order.
func (a *Allocator) UsedRooms(deviceID string) []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	rooms := a.used[deviceID]
	if len(rooms) == 0 {
		return nil
	}

	out := make([]int, 0, len(rooms))
	for room := UrgentMin; room <= NormalMax; room++ {
		if _, taken := rooms[room]; taken {
			out = append(out, room)
		}
	}
	return out
}

// AvailableRooms returns the free room numbers in the device's urgent and
// normal ranges, each in ascending order. An empty slice means the range
// is exhausted and the next Allocate will reuse an occupied slot.
func (a *Allocator) AvailableRooms(deviceID string) (urgent, normal []int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rooms := a.used[deviceID]
	for room := UrgentMin; room <= UrgentMax; room++ {
		if _, taken := rooms[room]; !taken {
			urgent = append(urgent, room)
		}
	}
	for room := NormalMin; room <= NormalMax; room++ {
		if _, taken := rooms[room]; !taken {
			normal = append(normal, room)
		}
	}
	return urgent, normal
}
