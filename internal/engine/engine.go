package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signgrid/signgrid-core/internal/infrastructure/config"
	"github.com/signgrid/signgrid-core/internal/infrastructure/influxdb"
	"github.com/signgrid/signgrid-core/internal/protocol"
	"github.com/signgrid/signgrid-core/internal/rooms"
	"github.com/signgrid/signgrid-core/internal/session"
	"github.com/signgrid/signgrid-core/internal/sign"
	"github.com/signgrid/signgrid-core/internal/transport"
)

// Logger defines the logging interface used by the engine.
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

// MQTTConnector is the engine's view of the MQTT transport: a way to
// initiate a session toward one device.
type MQTTConnector interface {
	Open(deviceID string, build transport.SessionBuilder) (*session.Session, error)
}

// Engine coordinates sessions, room allocation and provisioning for the
// sign fleet.
//
// Transports hand new links to BuildSession; the engine wires each
// session's verification, registration and telemetry, then serves
// fleet-level operations against the registry.
type Engine struct {
	cfg    *config.Config
	repo   sign.Repository
	logger Logger

	registry  *session.Registry
	allocator *rooms.Allocator
	mqtt      MQTTConnector
	telemetry *influxdb.Client

	retry transport.RetryPolicy
}

// New creates an engine over the given provisioning repository.
func New(cfg *config.Config, repo sign.Repository) *Engine {
	return &Engine{
		cfg:       cfg,
		repo:      repo,
		logger:    noopLogger{},
		registry:  session.NewRegistry(),
		allocator: rooms.NewAllocator(),
		retry: transport.RetryPolicy{
			Attempts:  cfg.Retry.Attempts,
			BaseDelay: cfg.GetRetryBaseDelay(),
			MaxDelay:  cfg.GetRetryMaxDelay(),
		},
	}
}

// SetLogger sets the logger for the engine and its registry.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
	e.registry.SetLogger(logger)
}

// SetMQTTConnector attaches the MQTT transport for server-initiated
// connections.
func (e *Engine) SetMQTTConnector(c MQTTConnector) {
	e.mqtt = c
}

// SetTelemetry attaches the InfluxDB client. Telemetry is optional; a nil
// client disables it.
func (e *Engine) SetTelemetry(c *influxdb.Client) {
	e.telemetry = c
}

// Registry exposes the session registry for transports and diagnostics.
func (e *Engine) Registry() *session.Registry {
	return e.registry
}

// Allocator exposes the room allocator.
func (e *Engine) Allocator() *rooms.Allocator {
	return e.allocator
}

// sessionConfig derives session timing from the loaded config.
func (e *Engine) sessionConfig() session.Config {
	return session.Config{
		HandshakeTimeout: e.cfg.GetHandshakeTimeout(),
		HeartbeatTimeout: e.cfg.GetHeartbeatTimeout(),
		CheckInterval:    e.cfg.GetHeartbeatInterval(),
	}
}

// BuildSession constructs a fully wired session over a transport link.
// It is the SessionBuilder handed to every transport.
func (e *Engine) BuildSession(link session.Link) *session.Session {
	s := session.New(link, session.VerifierFunc(e.verify), e.sessionConfig())
	s.SetLogger(e.logger)

	s.SetOnActive(func(s *session.Session) {
		e.registry.Register(s)
		e.recordSessionEvent(s.DeviceID(), "connected")
	})

	s.SetOnClose(func(s *session.Session, reason error) {
		e.registry.Remove(s)
		if s.DeviceID() != "" {
			e.recordSessionEvent(s.DeviceID(), closeEvent(reason))
		}
	})

	s.SetOnLiveness(func(deviceID string, source session.LivenessSource) {
		if e.telemetry != nil {
			e.telemetry.WriteHeartbeat(deviceID, string(source))
		}
	})

	s.SetOnDeviceError(func(deviceID string, code byte) {
		if err := e.repo.IncrementErrorCount(context.Background(), deviceID); err != nil {
			e.logger.Warn("recording device error failed", "device_id", deviceID, "error", err)
		}
		if e.telemetry != nil {
			e.telemetry.WriteDeviceError(deviceID, code)
		}
	})

	return s
}

// verify checks a claimed identity against the provisioning store and
// evicts any prior session for it, so the old session is closed before
// the new one goes active. The registry's newer-wins store remains as a
// backstop for concurrent handshakes.
func (e *Engine) verify(ctx context.Context, deviceID string) (*sign.Sign, error) {
	s, err := e.repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotProvisioned, deviceID)
	}
	if old, lookupErr := e.registry.Lookup(deviceID); lookupErr == nil {
		e.logger.Info("evicting superseded session", "device_id", deviceID)
		old.Evict()
	}
	return s, nil
}

// closeEvent names the telemetry event for a session close reason.
func closeEvent(reason error) string {
	switch {
	case errors.Is(reason, session.ErrLivenessLost):
		return "liveness_lost"
	case errors.Is(reason, session.ErrEvicted):
		return "evicted"
	default:
		return "disconnected"
	}
}

// Connect initiates a session toward a provisioned device.
//
// Physical signs are reached over MQTT. Simulated signs get a loopback
// link and a synthetically completed handshake, so they behave like
// connected devices to the rest of the system.
func (e *Engine) Connect(ctx context.Context, deviceID string) error {
	record, err := e.repo.GetByID(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotProvisioned, deviceID)
	}

	if e.registry.IsConnected(deviceID) {
		return nil
	}

	if record.Simulated {
		return e.connectSimulated(deviceID)
	}

	if e.mqtt == nil {
		return ErrNoMQTTTransport
	}
	if _, err := e.mqtt.Open(deviceID, e.BuildSession); err != nil {
		return fmt.Errorf("opening mqtt session: %w", err)
	}
	return nil
}

// connectSimulated brings a simulated sign online without a transport.
func (e *Engine) connectSimulated(deviceID string) error {
	s := e.BuildSession(simulatedLink{deviceID: deviceID})
	if err := s.Start(); err != nil {
		return err
	}
	// Complete the handshake on the device's behalf.
	if err := s.HandleFrame(protocol.Connect{}, deviceID); err != nil {
		s.Close()
		return err
	}
	return nil
}

// Disconnect closes a device's session. It is a no-op when the device is
// not connected.
func (e *Engine) Disconnect(deviceID string) {
	s, err := e.registry.Lookup(deviceID)
	if err != nil {
		return
	}
	s.Close()
}

// IsConnected reports whether a device has an active session.
func (e *Engine) IsConnected(deviceID string) bool {
	return e.registry.IsConnected(deviceID)
}

// SendCommand dispatches a command to a connected device, retrying with
// capped exponential backoff on transient transport failures. An offline
// or not-yet-active session fails immediately; retrying cannot fix it.
func (e *Engine) SendCommand(ctx context.Context, deviceID string, cmd protocol.Command) error {
	return transport.Retry(ctx, e.retry, func() error {
		s, err := e.registry.Lookup(deviceID)
		if err != nil {
			return transport.Permanent(err)
		}
		if err := s.Send(cmd); err != nil {
			if errors.Is(err, session.ErrSessionNotReady) || errors.Is(err, session.ErrSessionClosed) {
				return transport.Permanent(err)
			}
			return err
		}
		return nil
	})
}

// SendMessage pushes a message to a device, allocating a room slot when
// the message does not pin one.
//
// When msg.RoomNumber is zero, the lowest free room in the urgent or
// normal range is reserved; on range exhaustion the oldest slot is
// overwritten. The room actually used is returned.
func (e *Engine) SendMessage(ctx context.Context, deviceID string, msg protocol.SendMultiMessage, urgent bool) (int, error) {
	allocated := false
	if msg.RoomNumber == 0 {
		room, forced := e.allocator.Allocate(deviceID, urgent)
		if forced {
			e.logger.Warn("room range exhausted, overwriting oldest slot",
				"device_id", deviceID, "room", room, "urgent", urgent)
		}
		msg.RoomNumber = room
		allocated = !forced
	} else {
		if err := e.allocator.Mark(deviceID, msg.RoomNumber); err != nil {
			return 0, err
		}
	}

	if err := e.SendCommand(ctx, deviceID, msg); err != nil {
		if allocated {
			e.allocator.Release(deviceID, msg.RoomNumber)
		}
		return 0, err
	}
	return msg.RoomNumber, nil
}

// DeleteRoom clears one room on a device and frees the slot.
func (e *Engine) DeleteRoom(ctx context.Context, deviceID string, room int) error {
	if err := e.SendCommand(ctx, deviceID, protocol.DeleteRoom{RoomNumber: room}); err != nil {
		return err
	}
	e.allocator.Release(deviceID, room)
	return nil
}

// DeleteAll clears every room on a device and frees all its slots.
func (e *Engine) DeleteAll(ctx context.Context, deviceID string) error {
	if err := e.SendCommand(ctx, deviceID, protocol.DeleteAll{}); err != nil {
		return err
	}
	e.allocator.ReleaseAll(deviceID)
	return nil
}

// Broadcast sends a command to every connected device, best effort.
// The result maps each connected device to its send outcome.
func (e *Engine) Broadcast(cmd protocol.Command) map[string]error {
	return e.registry.Broadcast(cmd)
}

// AllocateRoom reserves a room slot for a device without sending anything.
// It reports the room chosen and whether an occupied slot was reused
// because the range was exhausted.
func (e *Engine) AllocateRoom(deviceID string, urgent bool) (int, bool) {
	return e.allocator.Allocate(deviceID, urgent)
}

// ReleaseRoom frees a room slot without contacting the device.
func (e *Engine) ReleaseRoom(deviceID string, room int) {
	e.allocator.Release(deviceID, room)
}

// SyncTime pushes the server clock to a device.
func (e *Engine) SyncTime(ctx context.Context, deviceID string) error {
	return e.SendCommand(ctx, deviceID, protocol.TimeSync{Time: time.Now()})
}

// SetBrightnessSchedule programs a device's brightness timetable.
func (e *Engine) SetBrightnessSchedule(ctx context.Context, deviceID string, entries []protocol.BrightnessEntry) error {
	return e.SendCommand(ctx, deviceID, protocol.BrightnessSchedule{Entries: entries})
}

// Close shuts every session down. Used at process shutdown.
func (e *Engine) Close() {
	e.registry.CloseAll()
}

func (e *Engine) recordSessionEvent(deviceID, event string) {
	if e.telemetry != nil {
		e.telemetry.WriteSessionEvent(deviceID, event)
	}
}

// simulatedLink is the loopback carrier for simulated signs: frames go
// nowhere and the carrier never fails.
type simulatedLink struct {
	deviceID string
}

func (l simulatedLink) SendFrame([]byte) error { return nil }
func (l simulatedLink) RemoteAddr() string     { return "simulated:" + l.deviceID }
func (l simulatedLink) Close() error           { return nil }
