// Package engine is the facade over the sign fleet.
//
// It owns the session registry, the room allocator and the provisioning
// repository, builds sessions for the transports, and exposes the
// operations callers actually want: connect a device, push a message,
// clear rooms, ask who is online.
//
// Command dispatch retries with capped exponential backoff. Message sends
// allocate a room slot automatically unless the caller pins one.
package engine
