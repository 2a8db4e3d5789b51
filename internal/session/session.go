package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signgrid/signgrid-core/internal/protocol"
	"github.com/signgrid/signgrid-core/internal/sign"
)

// Logger defines the logging interface used by sessions and the registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Link is the transport half of a session: a way to push frames to one
// device and tear the carrier down. TCP connections and MQTT topic pairs
// both satisfy it.
type Link interface {
	// SendFrame writes one complete frame to the device.
	SendFrame(frame []byte) error

	// RemoteAddr describes the device's transport endpoint for logging.
	RemoteAddr() string

	// Close releases the transport carrier.
	Close() error
}

// Verifier checks a claimed device identity against the provisioning
// store during the handshake.
type Verifier interface {
	// Verify returns the provisioned sign for deviceID, or an error if
	// the identity is unknown or malformed.
	Verify(ctx context.Context, deviceID string) (*sign.Sign, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, deviceID string) (*sign.Sign, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, deviceID string) (*sign.Sign, error) {
	return f(ctx, deviceID)
}

// Config holds the session timing knobs.
type Config struct {
	// HandshakeTimeout bounds the wait for the device's identity reply.
	HandshakeTimeout time.Duration

	// HeartbeatTimeout is how long a session stays active without any
	// frame before liveness is declared lost.
	HeartbeatTimeout time.Duration

	// CheckInterval is how often liveness is evaluated.
	CheckInterval time.Duration
}

// Session drives one device connection through the handshake and keeps it
// alive afterwards.
//
// Lifecycle: Start sends the ID request and arms the handshake timer.
// HandleFrame advances the state machine as device frames arrive. Once
// active, any inbound frame refreshes liveness; a background monitor
// closes the session when the heartbeat window lapses. Close is safe to
// call from any goroutine, any number of times.
type Session struct {
	link     Link
	verifier Verifier
	cfg      Config
	logger   Logger

	mu       sync.Mutex
	state    State
	deviceID string
	record   *sign.Sign
	lastSeen time.Time
	source   LivenessSource
	reason   error

	started        bool
	handshakeTimer *time.Timer
	done           chan struct{}
	closeOnce      sync.Once
	wg             sync.WaitGroup

	onActive      func(s *Session)
	onClose       func(s *Session, reason error)
	onLiveness    func(deviceID string, source LivenessSource)
	onDeviceError func(deviceID string, code byte)
}

// New creates a session over the given link. The verifier is consulted
// when the device presents its identity.
func New(link Link, verifier Verifier, cfg Config) *Session {
	return &Session{
		link:     link,
		verifier: verifier,
		cfg:      cfg,
		logger:   noopLogger{},
		state:    StateIdle,
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetOnActive sets a callback invoked when the handshake completes.
// The callback runs on the frame-handling goroutine; keep it short.
func (s *Session) SetOnActive(fn func(s *Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onActive = fn
}

// SetOnClose sets a callback invoked exactly once when the session closes,
// with the close reason.
func (s *Session) SetOnClose(fn func(s *Session, reason error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// SetOnLiveness sets a callback invoked whenever liveness is refreshed.
func (s *Session) SetOnLiveness(fn func(deviceID string, source LivenessSource)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLiveness = fn
}

// SetOnDeviceError sets a callback invoked when the device reports a
// protocol error.
func (s *Session) SetOnDeviceError(fn func(deviceID string, code byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDeviceError = fn
}

// Start sends the ID request and begins the handshake.
//
// The session moves to AwaitingIdentity; if no identity arrives within
// HandshakeTimeout the session closes with ErrHandshakeTimeout.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.started = true
	s.state = StateAwaitingIdentity
	s.handshakeTimer = time.AfterFunc(s.cfg.HandshakeTimeout, func() {
		s.close(ErrHandshakeTimeout)
	})
	s.mu.Unlock()

	// The ID request carries placeholder DATA; the device replies with
	// its identity in the ID field.
	frame, err := protocol.Encode(protocol.Connect{}, "")
	if err != nil {
		s.close(fmt.Errorf("encoding id request: %w", err))
		return err
	}
	if err := s.link.SendFrame(frame); err != nil {
		err = fmt.Errorf("sending id request: %w", err)
		s.close(err)
		return err
	}

	s.wg.Add(1)
	go s.monitorLiveness()

	return nil
}

// HandleFrame advances the state machine with one inbound frame.
//
// In AwaitingIdentity only a Connect reply is accepted; it carries the
// device identity and triggers verification. In Active, every frame
// refreshes liveness; heartbeats and error responses get additional
// handling. Frames in any other state return ErrUnexpectedFrame.
func (s *Session) HandleFrame(cmd protocol.Command, deviceID string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateAwaitingIdentity:
		if _, ok := cmd.(protocol.Connect); !ok {
			return fmt.Errorf("%w: %s in %s", ErrUnexpectedFrame, cmd.Type(), state)
		}
		return s.verifyIdentity(deviceID)

	case StateActive:
		s.touchLocked(LivenessTransport)
		switch c := cmd.(type) {
		case protocol.ErrorResponse:
			s.mu.Lock()
			fn := s.onDeviceError
			id := s.deviceID
			s.mu.Unlock()
			s.logger.Warn("device reported protocol error", "device_id", id, "code", c.Code)
			if fn != nil {
				fn(id, c.Code)
			}
		case protocol.Heartbeat:
			s.logger.Debug("heartbeat received", "device_id", s.DeviceID())
		}
		return nil

	case StateClosed:
		return ErrSessionClosed

	default:
		return fmt.Errorf("%w: %s in %s", ErrUnexpectedFrame, cmd.Type(), state)
	}
}

// verifyIdentity runs the Verifying step of the handshake.
func (s *Session) verifyIdentity(deviceID string) error {
	s.mu.Lock()
	if s.state != StateAwaitingIdentity {
		s.mu.Unlock()
		return ErrUnexpectedFrame
	}
	s.state = StateVerifying
	s.mu.Unlock()

	if err := sign.ValidateDeviceID(deviceID); err != nil {
		reason := fmt.Errorf("%w: %v", ErrIdentityRejected, err)
		s.close(reason)
		return reason
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	defer cancel()

	record, err := s.verifier.Verify(ctx, deviceID)
	if err != nil {
		reason := fmt.Errorf("%w: %v", ErrIdentityRejected, err)
		s.close(reason)
		return reason
	}

	s.mu.Lock()
	if s.state != StateVerifying {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateActive
	s.deviceID = deviceID
	s.record = record
	s.lastSeen = time.Now()
	s.source = LivenessTransport
	if record.Simulated {
		s.source = LivenessSynthetic
	}
	if s.handshakeTimer != nil {
		s.handshakeTimer.Stop()
	}
	fn := s.onActive
	s.mu.Unlock()

	s.logger.Info("session active",
		"device_id", deviceID,
		"remote", s.link.RemoteAddr(),
		"simulated", record.Simulated,
	)

	if fn != nil {
		fn(s)
	}

	// Acknowledge the accepted identity, then sync the device clock. The
	// ack is a Connect frame carrying the verified ID, which the device
	// tells apart from the ID request by its non-placeholder ID field.
	if err := s.Send(protocol.Connect{}); err != nil {
		s.logger.Warn("connection ack failed", "device_id", deviceID, "error", err)
	}
	if err := s.Send(protocol.TimeSync{Time: time.Now()}); err != nil {
		s.logger.Warn("time sync after handshake failed", "device_id", deviceID, "error", err)
	}

	return nil
}

// Send encodes and dispatches a command to the device.
//
// Returns ErrSessionNotReady unless the session is Active.
func (s *Session) Send(cmd protocol.Command) error {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		if state == StateClosed {
			return ErrSessionClosed
		}
		return fmt.Errorf("%w: state %s", ErrSessionNotReady, state)
	}
	deviceID := s.deviceID
	s.mu.Unlock()

	frame, err := protocol.Encode(cmd, deviceID)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", cmd.Type(), err)
	}
	if err := s.link.SendFrame(frame); err != nil {
		return fmt.Errorf("sending %s: %w", cmd.Type(), err)
	}
	return nil
}

// Touch refreshes liveness from outside the frame path, for transports
// that infer liveness (MQTT) or assert it (simulated devices).
func (s *Session) Touch(source LivenessSource) {
	s.touchLocked(source)
}

func (s *Session) touchLocked(source LivenessSource) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.lastSeen = time.Now()
	// Synthetic liveness is sticky: a simulated sign never downgrades to
	// observed liveness.
	if s.source != LivenessSynthetic {
		s.source = source
	}
	id := s.deviceID
	src := s.source
	fn := s.onLiveness
	s.mu.Unlock()

	if fn != nil {
		fn(id, src)
	}
}

// monitorLiveness closes the session when the heartbeat window lapses.
// Simulated signs are exempt: their liveness is asserted, not observed.
func (s *Session) monitorLiveness() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			expired := s.state == StateActive &&
				s.source != LivenessSynthetic &&
				time.Since(s.lastSeen) > s.cfg.HeartbeatTimeout
			s.mu.Unlock()

			if expired {
				s.close(ErrLivenessLost)
				return
			}
		}
	}
}

// Close tears the session down with a generic reason.
// Safe to call multiple times.
func (s *Session) Close() error {
	s.close(ErrSessionClosed)
	return nil
}

// Evict closes the session because a newer connection for the same
// identity replaced it.
func (s *Session) Evict() {
	s.close(ErrEvicted)
}

func (s *Session) close(reason error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.reason = reason
		if s.handshakeTimer != nil {
			s.handshakeTimer.Stop()
		}
		id := s.deviceID
		fn := s.onClose
		s.mu.Unlock()

		close(s.done)
		if err := s.link.Close(); err != nil {
			s.logger.Debug("link close failed", "device_id", id, "error", err)
		}

		s.logger.Info("session closed", "device_id", id, "reason", reason)
		if fn != nil {
			fn(s, reason)
		}
	})
}

// Done returns a channel closed when the session has closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DeviceID returns the verified device identity, or the empty string
// before the handshake completes.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// Record returns the provisioned sign attached at verification, or nil.
func (s *Session) Record() *sign.Sign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// LastSeen returns the time of the last liveness observation and its
// source.
func (s *Session) LastSeen() (time.Time, LivenessSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen, s.source
}

// CloseReason returns the reason the session closed, or nil while open.
func (s *Session) CloseReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}
