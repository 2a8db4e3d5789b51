package sign

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository implements Repository with an in-memory map.
// It backs unit tests and ephemeral deployments with no database file.
type MemoryRepository struct {
	mu    sync.RWMutex
	signs map[string]Sign
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{signs: make(map[string]Sign)}
}

// GetByID retrieves a sign by its device identifier.
func (r *MemoryRepository) GetByID(_ context.Context, deviceID string) (*Sign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.signs[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// List retrieves all provisioned signs ordered by name.
func (r *MemoryRepository) List(_ context.Context) ([]Sign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	signs := make([]Sign, 0, len(r.signs))
	for _, s := range r.signs {
		signs = append(signs, s)
	}
	sort.Slice(signs, func(i, j int) bool { return signs[i].Name < signs[j].Name })
	return signs, nil
}

// Create inserts a new sign after validating it.
func (r *MemoryRepository) Create(_ context.Context, s *Sign) error {
	if err := Validate(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.signs[s.DeviceID]; ok {
		return ErrExists
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	r.signs[s.DeviceID] = *s
	return nil
}

// Update modifies an existing sign.
func (r *MemoryRepository) Update(_ context.Context, s *Sign) error {
	if err := Validate(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.signs[s.DeviceID]; !ok {
		return ErrNotFound
	}

	s.UpdatedAt = time.Now().UTC()
	r.signs[s.DeviceID] = *s
	return nil
}

// Delete removes a sign by device identifier.
func (r *MemoryRepository) Delete(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.signs[deviceID]; !ok {
		return ErrNotFound
	}
	delete(r.signs, deviceID)
	return nil
}

// IncrementErrorCount bumps the sign's device-reported error counter.
func (r *MemoryRepository) IncrementErrorCount(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.signs[deviceID]
	if !ok {
		return ErrNotFound
	}
	s.ErrorCount++
	s.UpdatedAt = time.Now().UTC()
	r.signs[deviceID] = s
	return nil
}
