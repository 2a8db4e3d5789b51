package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/signgrid/signgrid-core/internal/infrastructure/mqtt"
	"github.com/signgrid/signgrid-core/internal/protocol"
)

func testMultiMessage(kind protocol.MessageKind) protocol.SendMultiMessage {
	return protocol.SendMultiMessage{
		RoomNumber:         6,
		DisplayEffect:      1,
		DisplayEffectSpeed: 3,
		EndEffect:          1,
		EndEffectSpeed:     3,
		StartTime:          protocol.ScheduleTime{Year: 2026, Month: 8, Day: 29, Hour: 8, Minute: 0},
		EndTime:            protocol.ScheduleTime{Year: 2026, Month: 8, Day: 30, Hour: 8, Minute: 0},
		Kind:               kind,
		SerialNumber:       1,
		PayloadSize:        64,
		DownloadURL:        "http://10.0.0.1/content/1.bin",
	}
}

func TestPublishTopicRouting(t *testing.T) {
	topics := mqtt.NewTopics("display")

	tests := []struct {
		name string
		cmd  protocol.Command
		want string
	}{
		{"text_message", testMultiMessage(protocol.KindTextImage), "display/ABCD1234EFGH/message"},
		{"video_message", testMultiMessage(protocol.KindVideo), "display/ABCD1234EFGH/multimedia"},
		{"delete_room", protocol.DeleteRoom{RoomNumber: 6}, "display/ABCD1234EFGH/room/delete"},
		{"delete_all", protocol.DeleteAll{}, "display/ABCD1234EFGH/all/delete"},
		{"time_sync", protocol.TimeSync{Time: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}, "display/ABCD1234EFGH/command"},
		{"connect", protocol.Connect{}, "display/ABCD1234EFGH/command"},
		{"brightness", protocol.BrightnessSchedule{Entries: []protocol.BrightnessEntry{{Hour: 8, Minute: 0, Level: 80}}}, "display/ABCD1234EFGH/command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := protocol.Encode(tt.cmd, testDeviceID)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got := publishTopic(topics, testDeviceID, frame); got != tt.want {
				t.Errorf("publishTopic() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublishTopicShortFrame(t *testing.T) {
	topics := mqtt.NewTopics("display")
	got := publishTopic(topics, testDeviceID, []byte{0x02, 0x01})
	if want := "display/ABCD1234EFGH/command"; got != want {
		t.Errorf("publishTopic() = %q, want %q", got, want)
	}
}

func TestPayloadEncodingRoundTrip(t *testing.T) {
	frame, err := protocol.Encode(protocol.Heartbeat{}, testDeviceID)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	for _, encoding := range []string{EncodingBinary, EncodingHex} {
		t.Run(encoding, func(t *testing.T) {
			payload := EncodePayload(frame, encoding)

			got, err := DecodePayload(payload)
			if err != nil {
				t.Fatalf("DecodePayload() error = %v", err)
			}
			if !bytes.Equal(got, frame) {
				t.Errorf("round trip = %x, want %x", got, frame)
			}
		})
	}
}

func TestEncodePayloadHexIsUppercase(t *testing.T) {
	frame, err := protocol.Encode(protocol.DeleteAll{}, testDeviceID)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	payload := EncodePayload(frame, EncodingHex)
	for _, b := range payload {
		if b >= 'a' && b <= 'f' {
			t.Fatalf("hex payload contains lowercase: %s", payload)
		}
	}
}

func TestDecodePayloadAcceptsLowercaseHex(t *testing.T) {
	frame, err := protocol.Encode(protocol.DeleteAll{}, testDeviceID)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	lower := bytes.ToLower(EncodePayload(frame, EncodingHex))
	got, err := DecodePayload(lower)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("decoded = %x, want %x", got, frame)
	}
}

func TestDecodePayloadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"not_hex_not_frame", []byte("hello world")},
		{"odd_hex", []byte("ABC")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePayload(tt.payload); !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("DecodePayload() error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}
