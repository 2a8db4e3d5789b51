package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/signgrid/signgrid-core/internal/session"
)

// DeviceStatus is one fleet member's connection snapshot.
type DeviceStatus struct {
	DeviceID  string
	Name      string
	Simulated bool

	// Connected reports whether an active session exists.
	Connected bool

	// State is the session lifecycle state, or "closed" when offline.
	State string

	// LastSeen is the last liveness observation; zero when offline.
	LastSeen time.Time

	// LivenessSource labels how liveness was last observed
	// (transport, inferred, synthetic). Empty when offline.
	LivenessSource string

	// UsedRooms lists the occupied room slots.
	UsedRooms []int

	// ErrorCount is the persisted device-reported error total.
	ErrorCount int
}

// Stats is a fleet-wide connection snapshot.
type Stats struct {
	Total     int
	Connected int
	Offline   int
	Devices   []DeviceStatus
}

// Stats builds a snapshot of every provisioned sign's connection state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	signs, err := e.repo.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("listing signs: %w", err)
	}

	stats := Stats{
		Total:   len(signs),
		Devices: make([]DeviceStatus, 0, len(signs)),
	}

	for _, record := range signs {
		status := DeviceStatus{
			DeviceID:   record.DeviceID,
			Name:       record.Name,
			Simulated:  record.Simulated,
			ErrorCount: record.ErrorCount,
			State:      session.StateClosed.String(),
			UsedRooms:  e.allocator.UsedRooms(record.DeviceID),
		}

		if s, err := e.registry.Lookup(record.DeviceID); err == nil {
			status.Connected = true
			status.State = s.State().String()
			lastSeen, source := s.LastSeen()
			status.LastSeen = lastSeen
			status.LivenessSource = string(source)
		}

		if status.Connected {
			stats.Connected++
		} else {
			stats.Offline++
		}
		stats.Devices = append(stats.Devices, status)
	}

	return stats, nil
}
