package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signgrid/signgrid-core/internal/protocol"
	"github.com/signgrid/signgrid-core/internal/sign"
)

const testDeviceID = "ABCD1234EFGH"

// fakeLink records outbound frames and simulates link failures.
type fakeLink struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	sendErr error
}

func (l *fakeLink) SendFrame(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.frames = append(l.frames, append([]byte(nil), frame...))
	return nil
}

func (l *fakeLink) RemoteAddr() string { return "fake:0" }

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) sentCommands(t *testing.T) []protocol.Command {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()

	cmds := make([]protocol.Command, 0, len(l.frames))
	for _, frame := range l.frames {
		cmd, _, err := protocol.Decode(frame)
		if err != nil {
			t.Fatalf("decoding sent frame: %v", err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// testVerifier accepts any identity present in its map.
func testVerifier(signs map[string]*sign.Sign) Verifier {
	return VerifierFunc(func(_ context.Context, deviceID string) (*sign.Sign, error) {
		s, ok := signs[deviceID]
		if !ok {
			return nil, sign.ErrNotFound
		}
		return s, nil
	})
}

func provisioned(deviceID string, simulated bool) map[string]*sign.Sign {
	return map[string]*sign.Sign{
		deviceID: {
			DeviceID:        deviceID,
			Name:            "Test Sign",
			ProtocolVersion: sign.ProtocolNew,
			Simulated:       simulated,
		},
	}
}

func testConfig() Config {
	return Config{
		HandshakeTimeout: 200 * time.Millisecond,
		HeartbeatTimeout: 150 * time.Millisecond,
		CheckInterval:    20 * time.Millisecond,
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHandshakeHappyPath(t *testing.T) {
	link := &fakeLink{}
	s := New(link, testVerifier(provisioned(testDeviceID, false)), testConfig())
	defer s.Close()

	var activated string
	s.SetOnActive(func(s *Session) { activated = s.DeviceID() })

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := s.State(); got != StateAwaitingIdentity {
		t.Fatalf("state after Start = %s, want awaiting_identity", got)
	}

	// The device replies to the ID request with its identity.
	if err := s.HandleFrame(protocol.Connect{}, testDeviceID); err != nil {
		t.Fatalf("HandleFrame(connect reply) error = %v", err)
	}

	if got := s.State(); got != StateActive {
		t.Errorf("state after handshake = %s, want active", got)
	}
	if s.DeviceID() != testDeviceID {
		t.Errorf("DeviceID() = %q, want %q", s.DeviceID(), testDeviceID)
	}
	if activated != testDeviceID {
		t.Errorf("onActive device = %q, want %q", activated, testDeviceID)
	}

	// The wire saw the ID request, then the connection ack and a time
	// sync after activation.
	cmds := link.sentCommands(t)
	if len(cmds) != 3 {
		t.Fatalf("sent %d commands, want 3", len(cmds))
	}
	if cmds[0].Type() != protocol.CmdConnect {
		t.Errorf("first command = %s, want connect", cmds[0].Type())
	}
	if cmds[1].Type() != protocol.CmdConnect {
		t.Errorf("second command = %s, want connect ack", cmds[1].Type())
	}
	if cmds[2].Type() != protocol.CmdTimeSync {
		t.Errorf("third command = %s, want time_sync", cmds[2].Type())
	}

	// The ack carries the verified identity; the ID request does not.
	link.mu.Lock()
	frames := link.frames
	link.mu.Unlock()
	if _, id, err := protocol.Decode(frames[0]); err != nil || id == testDeviceID {
		t.Errorf("id request carries id %q (err %v), want placeholder", id, err)
	}
	if _, id, err := protocol.Decode(frames[1]); err != nil || id != testDeviceID {
		t.Errorf("ack carries id %q (err %v), want %q", id, err, testDeviceID)
	}
}

func TestSendBeforeActive(t *testing.T) {
	link := &fakeLink{}
	s := New(link, testVerifier(provisioned(testDeviceID, false)), testConfig())
	defer s.Close()

	err := s.Send(protocol.DeleteAll{})
	if !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("Send() before Start error = %v, want ErrSessionNotReady", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	err = s.Send(protocol.DeleteAll{})
	if !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("Send() during handshake error = %v, want ErrSessionNotReady", err)
	}
}

func TestSendWhenActive(t *testing.T) {
	link := &fakeLink{}
	s := New(link, testVerifier(provisioned(testDeviceID, false)), testConfig())
	defer s.Close()

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HandleFrame(protocol.Connect{}, testDeviceID); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}

	if err := s.Send(protocol.DeleteRoom{RoomNumber: 7}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	cmds := link.sentCommands(t)
	last := cmds[len(cmds)-1]
	dr, ok := last.(protocol.DeleteRoom)
	if !ok || dr.RoomNumber != 7 {
		t.Errorf("last command = %+v, want DeleteRoom room 7", last)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	link := &fakeLink{}
	cfg := testConfig()
	cfg.HandshakeTimeout = 30 * time.Millisecond
	s := New(link, testVerifier(provisioned(testDeviceID, false)), cfg)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return s.State() == StateClosed })
	if !errors.Is(s.CloseReason(), ErrHandshakeTimeout) {
		t.Errorf("CloseReason() = %v, want ErrHandshakeTimeout", s.CloseReason())
	}
}

func TestIdentityRejected(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
	}{
		{"unprovisioned", "UNKNOWN12345"},
		{"malformed", "bad id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := &fakeLink{}
			s := New(link, testVerifier(provisioned(testDeviceID, false)), testConfig())

			if err := s.Start(); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			err := s.HandleFrame(protocol.Connect{}, tt.deviceID)
			if !errors.Is(err, ErrIdentityRejected) {
				t.Errorf("HandleFrame() error = %v, want ErrIdentityRejected", err)
			}
			if s.State() != StateClosed {
				t.Errorf("state = %s, want closed", s.State())
			}
		})
	}
}

func TestUnexpectedFrameDuringHandshake(t *testing.T) {
	link := &fakeLink{}
	s := New(link, testVerifier(provisioned(testDeviceID, false)), testConfig())
	defer s.Close()

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := s.HandleFrame(protocol.Heartbeat{}, testDeviceID)
	if !errors.Is(err, ErrUnexpectedFrame) {
		t.Errorf("HandleFrame(heartbeat) error = %v, want ErrUnexpectedFrame", err)
	}
	// A stray frame does not kill the handshake.
	if s.State() != StateAwaitingIdentity {
		t.Errorf("state = %s, want awaiting_identity", s.State())
	}
}

func TestLivenessLost(t *testing.T) {
	link := &fakeLink{}
	s := New(link, testVerifier(provisioned(testDeviceID, false)), testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HandleFrame(protocol.Connect{}, testDeviceID); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return s.State() == StateClosed })
	if !errors.Is(s.CloseReason(), ErrLivenessLost) {
		t.Errorf("CloseReason() = %v, want ErrLivenessLost", s.CloseReason())
	}
}

func TestHeartbeatRefreshesLiveness(t *testing.T) {
	link := &fakeLink{}
	s := New(link, testVerifier(provisioned(testDeviceID, false)), testConfig())
	defer s.Close()

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HandleFrame(protocol.Connect{}, testDeviceID); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}

	// Keep heartbeating past several liveness windows.
	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := s.HandleFrame(protocol.Heartbeat{}, testDeviceID); err != nil {
			t.Fatalf("HandleFrame(heartbeat) error = %v", err)
		}
		time.Sleep(30 * time.Millisecond)
	}

	if s.State() != StateActive {
		t.Errorf("state = %s, want active", s.State())
	}
}

func TestSimulatedSignNeverExpires(t *testing.T) {
	link := &fakeLink{}
	s := New(link, testVerifier(provisioned(testDeviceID, true)), testConfig())
	defer s.Close()

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HandleFrame(protocol.Connect{}, testDeviceID); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}

	if _, source := s.LastSeen(); source != LivenessSynthetic {
		t.Errorf("liveness source = %s, want synthetic", source)
	}

	// Well past the heartbeat window with no frames at all.
	time.Sleep(300 * time.Millisecond)
	if s.State() != StateActive {
		t.Errorf("state = %s, want active", s.State())
	}
}

func TestDeviceErrorCallback(t *testing.T) {
	link := &fakeLink{}
	s := New(link, testVerifier(provisioned(testDeviceID, false)), testConfig())
	defer s.Close()

	var gotID string
	var gotCode byte
	s.SetOnDeviceError(func(deviceID string, code byte) {
		gotID = deviceID
		gotCode = code
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HandleFrame(protocol.Connect{}, testDeviceID); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	if err := s.HandleFrame(protocol.ErrorResponse{Code: 0x21}, testDeviceID); err != nil {
		t.Fatalf("HandleFrame(error response) error = %v", err)
	}

	if gotID != testDeviceID || gotCode != 0x21 {
		t.Errorf("onDeviceError = (%q, 0x%02x), want (%q, 0x21)", gotID, gotCode, testDeviceID)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	link := &fakeLink{}
	s := New(link, testVerifier(provisioned(testDeviceID, false)), testConfig())

	var closes int
	s.SetOnClose(func(*Session, error) { closes++ })

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	s.Close()
	s.Close()
	s.Evict()

	if closes != 1 {
		t.Errorf("onClose ran %d times, want 1", closes)
	}
	if !link.closed {
		t.Error("link not closed")
	}

	if err := s.Send(protocol.DeleteAll{}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send() after close error = %v, want ErrSessionClosed", err)
	}
}
