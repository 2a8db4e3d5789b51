// Package rooms allocates message slots ("rooms") on LED signs.
//
// Sign firmware stores up to 100 concurrent messages, addressed by room
// number. Rooms 1-5 are reserved for urgent messages; 6-100 hold normal
// traffic. Each device has its own slot space.
//
// The Allocator hands out the lowest free room in the requested range and,
// when a range is full, deliberately reuses the range's first room so the
// oldest content is overwritten instead of the send failing.
package rooms
