package transport

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/signgrid/signgrid-core/internal/infrastructure/mqtt"
	"github.com/signgrid/signgrid-core/internal/protocol"
	"github.com/signgrid/signgrid-core/internal/session"
)

// Payload encodings for frames on MQTT topics.
const (
	// EncodingBinary publishes raw frame bytes.
	EncodingBinary = "binary"

	// EncodingHex publishes frames as uppercase hexadecimal text, for
	// brokers and firmware builds that mangle binary payloads.
	EncodingHex = "hex"
)

// MQTTAdapter carries sessions over per-device MQTT topics.
//
// Unlike TCP, the server initiates MQTT sessions: Open publishes the ID
// request on the device's command topic and the device answers on its
// response topic. The adapter routes inbound frames to the owning session
// by the topic's device segment, so one broker connection serves the
// whole fleet.
//
// Inbound payloads are accepted in either encoding regardless of the
// configured outbound one; fielded firmware is inconsistent about this.
type MQTTAdapter struct {
	client   *mqtt.Client
	topics   mqtt.Topics
	encoding string
	logger   Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	started  bool
}

// NewMQTTAdapter creates an MQTT transport over an established broker
// connection.
func NewMQTTAdapter(client *mqtt.Client, encoding string) *MQTTAdapter {
	return &MQTTAdapter{
		client:   client,
		topics:   client.Topics(),
		encoding: encoding,
		logger:   noopLogger{},
		sessions: make(map[string]*session.Session),
	}
}

// SetLogger sets the logger for the adapter.
func (a *MQTTAdapter) SetLogger(logger Logger) {
	a.logger = logger
}

// Start subscribes to the fleet's inbound topics.
func (a *MQTTAdapter) Start() error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	for _, topic := range []string{a.topics.AllResponses(), a.topics.AllHeartbeats()} {
		if err := a.client.Subscribe(topic, 1, a.handleInbound); err != nil {
			return fmt.Errorf("subscribing %s: %w", topic, err)
		}
	}

	// Status topics carry broker LWT payloads, not frames; they only
	// refresh liveness.
	if err := a.client.Subscribe(a.topics.AllStatuses(), 1, a.handleStatus); err != nil {
		return fmt.Errorf("subscribing %s: %w", a.topics.AllStatuses(), err)
	}

	a.logger.Info("mqtt transport started", "encoding", a.encoding)
	return nil
}

// Open starts a session toward one device over its topic pair.
//
// The session is built, tracked for inbound routing, and started (which
// publishes the ID request). It is removed from routing when it closes.
func (a *MQTTAdapter) Open(deviceID string, build SessionBuilder) (*session.Session, error) {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil, ErrServerClosed
	}
	if existing, ok := a.sessions[deviceID]; ok {
		a.mu.Unlock()
		return existing, nil
	}

	link := &mqttLink{
		client:   a.client,
		topics:   a.topics,
		deviceID: deviceID,
		encoding: a.encoding,
	}
	sess := build(link)
	a.sessions[deviceID] = sess
	a.mu.Unlock()

	go func() {
		<-sess.Done()
		a.mu.Lock()
		if a.sessions[deviceID] == sess {
			delete(a.sessions, deviceID)
		}
		a.mu.Unlock()
	}()

	if err := sess.Start(); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// lookup returns the session owning a topic's device segment.
func (a *MQTTAdapter) lookup(topic string) (*session.Session, string, bool) {
	deviceID := a.topics.DeviceID(topic)
	if deviceID == "" {
		return nil, "", false
	}
	a.mu.Lock()
	sess, ok := a.sessions[deviceID]
	a.mu.Unlock()
	return sess, deviceID, ok
}

// handleInbound decodes a frame payload and feeds it to the owning
// session.
func (a *MQTTAdapter) handleInbound(topic string, payload []byte) error {
	sess, deviceID, ok := a.lookup(topic)
	if !ok {
		a.logger.Debug("frame for unknown session", "topic", topic)
		return nil
	}

	frame, err := DecodePayload(payload)
	if err != nil {
		a.logger.Warn("bad mqtt payload", "topic", topic, "error", err)
		return err
	}

	cmd, frameDeviceID, err := protocol.Decode(frame)
	if err != nil {
		a.logger.Warn("bad frame on mqtt", "topic", topic, "error", err)
		return err
	}

	if err := sess.HandleFrame(cmd, frameDeviceID); err != nil {
		a.logger.Debug("frame rejected",
			"device_id", deviceID, "command", cmd.Type().String(), "error", err)
	}
	return nil
}

// handleStatus refreshes liveness from broker status payloads. An online
// status implies the device is up even though no frame was seen.
func (a *MQTTAdapter) handleStatus(topic string, payload []byte) error {
	sess, _, ok := a.lookup(topic)
	if !ok {
		return nil
	}
	if strings.Contains(string(payload), `"offline"`) {
		return nil
	}
	sess.Touch(session.LivenessInferred)
	return nil
}

// Close unsubscribes the fleet topics and closes open sessions.
func (a *MQTTAdapter) Close() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	sessions := make([]*session.Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	for _, topic := range []string{a.topics.AllResponses(), a.topics.AllHeartbeats(), a.topics.AllStatuses()} {
		if err := a.client.Unsubscribe(topic); err != nil {
			a.logger.Debug("unsubscribe failed", "topic", topic, "error", err)
		}
	}

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

// publishTopic selects the topic a frame belongs on, by its command byte.
// Message frames split further: video messages go to the multimedia
// topic, text and image messages to the message topic. Anything else is
// a control frame on the command topic.
func publishTopic(topics mqtt.Topics, deviceID string, frame []byte) string {
	if len(frame) < protocol.MinFrameSize {
		return topics.Command(deviceID)
	}

	switch protocol.CommandType(frame[3]) {
	case protocol.CmdSendMultiMessage:
		if cmd, _, err := protocol.Decode(frame); err == nil {
			if msg, ok := cmd.(protocol.SendMultiMessage); ok && msg.Kind == protocol.KindVideo {
				return topics.Multimedia(deviceID)
			}
		}
		return topics.Message(deviceID)
	case protocol.CmdDeleteRoom:
		return topics.RoomDelete(deviceID)
	case protocol.CmdDeleteAll:
		return topics.AllDelete(deviceID)
	default:
		return topics.Command(deviceID)
	}
}

// EncodePayload renders a frame in the given encoding.
func EncodePayload(frame []byte, encoding string) []byte {
	if encoding == EncodingHex {
		return []byte(strings.ToUpper(hex.EncodeToString(frame)))
	}
	return frame
}

// DecodePayload accepts a frame in either encoding. Raw frames are
// recognised by their STX byte; anything else must be valid hex.
func DecodePayload(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	if payload[0] == protocol.STX {
		return payload, nil
	}

	frame, err := hex.DecodeString(strings.TrimSpace(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return frame, nil
}

// mqttLink adapts a device's topic subtree to the session.Link interface.
type mqttLink struct {
	client   *mqtt.Client
	topics   mqtt.Topics
	deviceID string
	encoding string
}

// SendFrame publishes one frame to the topic its command belongs on.
func (l *mqttLink) SendFrame(frame []byte) error {
	topic := publishTopic(l.topics, l.deviceID, frame)
	return l.client.PublishFrame(topic, EncodePayload(frame, l.encoding))
}

// RemoteAddr describes the device's topic subtree for logging.
func (l *mqttLink) RemoteAddr() string {
	return "mqtt:" + l.topics.Prefix() + "/" + l.deviceID
}

// Close is a no-op: the broker connection is shared across sessions.
func (l *mqttLink) Close() error {
	return nil
}
