package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/signgrid/signgrid-core/internal/infrastructure/config"
	"github.com/signgrid/signgrid-core/internal/protocol"
	"github.com/signgrid/signgrid-core/internal/rooms"
	"github.com/signgrid/signgrid-core/internal/session"
	"github.com/signgrid/signgrid-core/internal/sign"
	"github.com/signgrid/signgrid-core/internal/transport"
)

const testDeviceID = "ABCD1234EFGH"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Retry.Attempts = 2
	cfg.Retry.BaseDelay = 1
	cfg.Retry.MaxDelay = 5
	return cfg
}

func testEngine(t *testing.T) (*Engine, *sign.MemoryRepository) {
	t.Helper()

	repo := sign.NewMemoryRepository()
	e := New(testConfig(), repo)
	t.Cleanup(e.Close)
	return e, repo
}

func provision(t *testing.T, repo sign.Repository, deviceID string, simulated bool) {
	t.Helper()

	err := repo.Create(context.Background(), &sign.Sign{
		DeviceID:        deviceID,
		Name:            "Sign " + deviceID,
		ProtocolVersion: sign.ProtocolNew,
		Simulated:       simulated,
	})
	if err != nil {
		t.Fatalf("provisioning %s: %v", deviceID, err)
	}
}

// recordingLink captures frames sent over an engine-built session.
type recordingLink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (l *recordingLink) SendFrame(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, append([]byte(nil), frame...))
	return nil
}

func (l *recordingLink) RemoteAddr() string { return "test:0" }
func (l *recordingLink) Close() error       { return nil }

func (l *recordingLink) commands(t *testing.T) []protocol.Command {
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

// connectDevice runs a full handshake for a provisioned device over a
// recording link.
func connectDevice(t *testing.T, e *Engine, deviceID string) *recordingLink {
	t.Helper()

	link := &recordingLink{}
	s := e.BuildSession(link)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HandleFrame(protocol.Connect{}, deviceID); err != nil {
		t.Fatalf("handshake error = %v", err)
	}
	return link
}

func testMessage() protocol.SendMultiMessage {
	return protocol.SendMultiMessage{
		DisplayEffect:      1,
		DisplayEffectSpeed: 3,
		EndEffect:          1,
		EndEffectSpeed:     3,
		StartTime:          protocol.ScheduleTime{Year: 2026, Month: 8, Day: 29, Hour: 8, Minute: 0},
		EndTime:            protocol.ScheduleTime{Year: 2026, Month: 8, Day: 30, Hour: 8, Minute: 0},
		Kind:               protocol.KindTextImage,
		SerialNumber:       1,
		PayloadSize:        128,
		DownloadURL:        "http://10.0.0.1/content/1.bin",
	}
}

func TestHandshakeRegistersSession(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)

	connectDevice(t, e, testDeviceID)

	if !e.IsConnected(testDeviceID) {
		t.Error("IsConnected() = false after handshake")
	}
}

func TestVerifyRejectsUnprovisioned(t *testing.T) {
	e, _ := testEngine(t)

	link := &recordingLink{}
	s := e.BuildSession(link)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := s.HandleFrame(protocol.Connect{}, "UNKNOWN12345")
	if !errors.Is(err, session.ErrIdentityRejected) {
		t.Errorf("handshake error = %v, want ErrIdentityRejected", err)
	}
	if e.IsConnected("UNKNOWN12345") {
		t.Error("unprovisioned device registered")
	}
}

func TestNewerConnectionWins(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)

	connectDevice(t, e, testDeviceID)
	first, err := e.Registry().Lookup(testDeviceID)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	connectDevice(t, e, testDeviceID)

	if first.State() != session.StateClosed {
		t.Errorf("first session state = %s, want closed", first.State())
	}
	if !errors.Is(first.CloseReason(), session.ErrEvicted) {
		t.Errorf("first CloseReason() = %v, want ErrEvicted", first.CloseReason())
	}
	if !e.IsConnected(testDeviceID) {
		t.Error("device offline after reconnection")
	}
	if e.Registry().Count() != 1 {
		t.Errorf("Count() = %d, want 1", e.Registry().Count())
	}
}

// closeObservingLink runs a hook when the session's carrier closes.
type closeObservingLink struct {
	recordingLink
	onClose func()
}

func (l *closeObservingLink) Close() error {
	if l.onClose != nil {
		l.onClose()
	}
	return nil
}

func TestReconnectEvictsBeforeActivation(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)

	newer := e.BuildSession(&recordingLink{})

	var stateAtEviction session.State
	older := e.BuildSession(&closeObservingLink{onClose: func() {
		stateAtEviction = newer.State()
	}})
	if err := older.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := older.HandleFrame(protocol.Connect{}, testDeviceID); err != nil {
		t.Fatalf("first handshake error = %v", err)
	}

	if err := newer.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := newer.HandleFrame(protocol.Connect{}, testDeviceID); err != nil {
		t.Fatalf("second handshake error = %v", err)
	}

	if !errors.Is(older.CloseReason(), session.ErrEvicted) {
		t.Errorf("older CloseReason() = %v, want ErrEvicted", older.CloseReason())
	}
	// The prior session closed while the new one was still verifying.
	if stateAtEviction == session.StateActive {
		t.Error("older session evicted after the newer one went active")
	}
	if newer.State() != session.StateActive {
		t.Errorf("newer state = %s, want active", newer.State())
	}
}

func TestCloseEventNames(t *testing.T) {
	tests := []struct {
		name   string
		reason error
		want   string
	}{
		{"liveness_lost", session.ErrLivenessLost, "liveness_lost"},
		{"evicted", session.ErrEvicted, "evicted"},
		{"shutdown", session.ErrSessionClosed, "disconnected"},
		{"handshake_failure", session.ErrHandshakeTimeout, "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := closeEvent(tt.reason); got != tt.want {
				t.Errorf("closeEvent(%v) = %q, want %q", tt.reason, got, tt.want)
			}
		})
	}
}

func TestSendMessageAllocatesRoom(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)
	link := connectDevice(t, e, testDeviceID)

	room, err := e.SendMessage(context.Background(), testDeviceID, testMessage(), false)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if room != rooms.NormalMin {
		t.Errorf("room = %d, want %d", room, rooms.NormalMin)
	}

	urgentRoom, err := e.SendMessage(context.Background(), testDeviceID, testMessage(), true)
	if err != nil {
		t.Fatalf("SendMessage(urgent) error = %v", err)
	}
	if urgentRoom != rooms.UrgentMin {
		t.Errorf("urgent room = %d, want %d", urgentRoom, rooms.UrgentMin)
	}

	cmds := link.commands(t)
	last := cmds[len(cmds)-1]
	msg, ok := last.(protocol.SendMultiMessage)
	if !ok {
		t.Fatalf("last command = %T, want SendMultiMessage", last)
	}
	if msg.RoomNumber != rooms.UrgentMin {
		t.Errorf("wire room = %d, want %d", msg.RoomNumber, rooms.UrgentMin)
	}
}

func TestSendMessagePinnedRoom(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)
	connectDevice(t, e, testDeviceID)

	msg := testMessage()
	msg.RoomNumber = 42
	room, err := e.SendMessage(context.Background(), testDeviceID, msg, false)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if room != 42 {
		t.Errorf("room = %d, want 42", room)
	}

	used := e.Allocator().UsedRooms(testDeviceID)
	if len(used) != 1 || used[0] != 42 {
		t.Errorf("UsedRooms() = %v, want [42]", used)
	}
}

func TestSendMessageOfflineDevice(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)

	_, err := e.SendMessage(context.Background(), testDeviceID, testMessage(), false)
	if !errors.Is(err, session.ErrNotConnected) {
		t.Errorf("SendMessage() error = %v, want ErrNotConnected", err)
	}
	// Being offline is not a transport failure; no retry budget is spent.
	if errors.Is(err, transport.ErrRetriesExhausted) {
		t.Errorf("SendMessage() error = %v, must not report retry exhaustion", err)
	}

	// The failed send must not leak a room slot.
	if used := e.Allocator().UsedRooms(testDeviceID); used != nil {
		t.Errorf("UsedRooms() = %v, want nil", used)
	}
}

func TestDeleteRoomFreesSlot(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)
	connectDevice(t, e, testDeviceID)

	room, err := e.SendMessage(context.Background(), testDeviceID, testMessage(), false)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if err := e.DeleteRoom(context.Background(), testDeviceID, room); err != nil {
		t.Fatalf("DeleteRoom() error = %v", err)
	}
	if used := e.Allocator().UsedRooms(testDeviceID); used != nil {
		t.Errorf("UsedRooms() = %v, want nil", used)
	}
}

func TestDeleteAllFreesEverySlot(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)
	connectDevice(t, e, testDeviceID)

	for i := 0; i < 3; i++ {
		if _, err := e.SendMessage(context.Background(), testDeviceID, testMessage(), false); err != nil {
			t.Fatalf("SendMessage() %d error = %v", i, err)
		}
	}

	if err := e.DeleteAll(context.Background(), testDeviceID); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if used := e.Allocator().UsedRooms(testDeviceID); used != nil {
		t.Errorf("UsedRooms() = %v, want nil", used)
	}
}

func TestConnectSimulatedSign(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, true)

	if err := e.Connect(context.Background(), testDeviceID); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !e.IsConnected(testDeviceID) {
		t.Error("simulated sign not connected")
	}

	// Connect is idempotent while the session lives.
	if err := e.Connect(context.Background(), testDeviceID); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}

	// Commands flow to simulated signs like real ones.
	if _, err := e.SendMessage(context.Background(), testDeviceID, testMessage(), false); err != nil {
		t.Errorf("SendMessage() to simulated sign error = %v", err)
	}

	s, err := e.Registry().Lookup(testDeviceID)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if _, source := s.LastSeen(); source != session.LivenessSynthetic {
		t.Errorf("liveness source = %s, want synthetic", source)
	}
}

func TestConnectUnprovisioned(t *testing.T) {
	e, _ := testEngine(t)

	err := e.Connect(context.Background(), "UNKNOWN12345")
	if !errors.Is(err, ErrNotProvisioned) {
		t.Errorf("Connect() error = %v, want ErrNotProvisioned", err)
	}
}

func TestConnectPhysicalWithoutMQTT(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)

	err := e.Connect(context.Background(), testDeviceID)
	if !errors.Is(err, ErrNoMQTTTransport) {
		t.Errorf("Connect() error = %v, want ErrNoMQTTTransport", err)
	}
}

func TestDisconnect(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)
	connectDevice(t, e, testDeviceID)

	e.Disconnect(testDeviceID)
	if e.IsConnected(testDeviceID) {
		t.Error("device still connected after Disconnect")
	}

	// Disconnecting an offline device is a no-op.
	e.Disconnect(testDeviceID)
}

func TestDeviceErrorIncrementsCount(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)
	connectDevice(t, e, testDeviceID)

	s, err := e.Registry().Lookup(testDeviceID)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if err := s.HandleFrame(protocol.ErrorResponse{Code: 0x03}, testDeviceID); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}

	record, err := repo.GetByID(context.Background(), testDeviceID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", record.ErrorCount)
	}
}

func TestStats(t *testing.T) {
	e, repo := testEngine(t)
	provision(t, repo, testDeviceID, false)
	provision(t, repo, "SIGN0000AAAA", false)
	provision(t, repo, "SIGN0000SIMU", true)

	connectDevice(t, e, testDeviceID)
	if err := e.Connect(context.Background(), "SIGN0000SIMU"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if _, err := e.SendMessage(context.Background(), testDeviceID, testMessage(), false); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	stats, err := e.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.Total != 3 || stats.Connected != 2 || stats.Offline != 1 {
		t.Errorf("Stats = total %d connected %d offline %d, want 3/2/1",
			stats.Total, stats.Connected, stats.Offline)
	}

	byID := make(map[string]DeviceStatus, len(stats.Devices))
	for _, d := range stats.Devices {
		byID[d.DeviceID] = d
	}

	physical := byID[testDeviceID]
	if !physical.Connected || physical.LivenessSource != string(session.LivenessTransport) {
		t.Errorf("physical status = %+v", physical)
	}
	if len(physical.UsedRooms) != 1 || physical.UsedRooms[0] != rooms.NormalMin {
		t.Errorf("physical UsedRooms = %v, want [%d]", physical.UsedRooms, rooms.NormalMin)
	}

	simulated := byID["SIGN0000SIMU"]
	if !simulated.Connected || simulated.LivenessSource != string(session.LivenessSynthetic) {
		t.Errorf("simulated status = %+v", simulated)
	}

	offline := byID["SIGN0000AAAA"]
	if offline.Connected || offline.State != "closed" {
		t.Errorf("offline status = %+v", offline)
	}
}
