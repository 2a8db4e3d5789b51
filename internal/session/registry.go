package session

import (
	"sort"
	"sync"

	"github.com/signgrid/signgrid-core/internal/protocol"
)

// Registry tracks the single active session per device identity.
//
// The protocol allows at most one live session per device: when a new
// connection completes its handshake for an identity that already has a
// session, the older session is evicted and the new one takes its place.
// The newer connection wins because the device itself initiated it; the
// old carrier is presumed stale.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register stores an active session under its device identity, evicting
// any previous session for the same identity.
//
// The eviction happens outside the registry lock so the old session's
// close callback cannot deadlock against Register.
func (r *Registry) Register(s *Session) {
	deviceID := s.DeviceID()

	r.mu.Lock()
	old := r.sessions[deviceID]
	r.sessions[deviceID] = s
	r.mu.Unlock()

	if old != nil && old != s {
		r.logger.Info("evicting superseded session", "device_id", deviceID)
		old.Evict()
	}
}

// Remove deletes a session from the registry, but only if it is still the
// current session for its identity. A session evicted by a newer
// connection must not remove its replacement on teardown.
func (r *Registry) Remove(s *Session) {
	deviceID := s.DeviceID()
	if deviceID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[deviceID] == s {
		delete(r.sessions, deviceID)
	}
}

// Lookup returns the active session for a device.
// Returns ErrNotConnected if none exists.
func (r *Registry) Lookup(deviceID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[deviceID]
	if !ok {
		return nil, ErrNotConnected
	}
	return s, nil
}

// IsConnected reports whether a device has an active session.
func (r *Registry) IsConnected(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[deviceID]
	return ok
}

// ListConnected returns the connected device identities in ascending
// order.
func (r *Registry) ListConnected() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Broadcast sends a command to every connected device, best effort.
//
// Each device gets an entry in the result map: nil on success, the send
// error otherwise. One failing device does not stop the fan-out.
func (r *Registry) Broadcast(cmd protocol.Command) map[string]error {
	r.mu.RLock()
	sessions := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		sessions[id] = s
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(sessions))
	for id, s := range sessions {
		results[id] = s.Send(cmd)
	}
	return results
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every registered session. It is used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			r.logger.Debug("session close failed", "device_id", s.DeviceID(), "error", err)
		}
	}
}
