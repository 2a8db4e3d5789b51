package session

// State is a session's position in the connection lifecycle.
//
// Transitions are strictly forward:
//
//	Idle -> AwaitingIdentity -> Verifying -> Active -> Closed
//
// Any state may jump straight to Closed on error, timeout or eviction.
type State int

// Session lifecycle states.
const (
	// StateIdle is a freshly created session before Start.
	StateIdle State = iota

	// StateAwaitingIdentity means the ID request has been sent and the
	// session is waiting for the device's identity reply.
	StateAwaitingIdentity

	// StateVerifying means an identity arrived and is being checked
	// against the provisioning store.
	StateVerifying

	// StateActive means the handshake completed: commands may be sent
	// and liveness is tracked.
	StateActive

	// StateClosed is terminal. The underlying link is released.
	StateClosed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingIdentity:
		return "awaiting_identity"
	case StateVerifying:
		return "verifying"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LivenessSource labels how a device's liveness was last observed.
type LivenessSource string

// Liveness sources.
const (
	// LivenessTransport means a frame arrived on the device's own link.
	LivenessTransport LivenessSource = "transport"

	// LivenessInferred means activity on a shared transport (an MQTT
	// topic) implied the device is up without a direct frame.
	LivenessInferred LivenessSource = "inferred"

	// LivenessSynthetic means the device is simulated and liveness is
	// asserted by the engine rather than observed.
	LivenessSynthetic LivenessSource = "synthetic"
)
