package sign

import "time"

// ProtocolVersion selects the firmware dialect a sign speaks.
type ProtocolVersion string

// Supported protocol versions.
const (
	// ProtocolNew is the current firmware dialect.
	ProtocolNew ProtocolVersion = "new"

	// ProtocolOld is the legacy firmware dialect kept for fielded units.
	ProtocolOld ProtocolVersion = "old"
)

// AllProtocolVersions returns every supported protocol version.
func AllProtocolVersions() []ProtocolVersion {
	return []ProtocolVersion{ProtocolNew, ProtocolOld}
}

// Sign is a provisioned LED sign in the fleet.
//
// DeviceID is the hardware identifier exchanged during the connection
// handshake; it is the primary key for sessions, room allocation and
// persistence alike.
type Sign struct {
	// DeviceID is the sign's hardware identifier (8-20 alphanumerics).
	DeviceID string

	// Name is a human-readable label for operators.
	Name string

	// ProtocolVersion selects the firmware dialect.
	ProtocolVersion ProtocolVersion

	// Simulated marks signs with no physical transport. Simulated signs
	// are treated as always reachable and never expire on heartbeat.
	Simulated bool

	// ErrorCount accumulates device-reported protocol errors.
	ErrorCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}
