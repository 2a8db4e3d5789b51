package mqtt

import "testing"

func TestTopicsLayout(t *testing.T) {
	topics := NewTopics("display")
	const id = "ABCD1234EFGH"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"message", topics.Message(id), "display/ABCD1234EFGH/message"},
		{"image", topics.Image(id), "display/ABCD1234EFGH/image"},
		{"multimedia", topics.Multimedia(id), "display/ABCD1234EFGH/multimedia"},
		{"command", topics.Command(id), "display/ABCD1234EFGH/command"},
		{"room delete", topics.RoomDelete(id), "display/ABCD1234EFGH/room/delete"},
		{"all delete", topics.AllDelete(id), "display/ABCD1234EFGH/all/delete"},
		{"response", topics.Response(id), "display/ABCD1234EFGH/response"},
		{"status", topics.Status(id), "display/ABCD1234EFGH/status"},
		{"heartbeat", topics.Heartbeat(id), "display/ABCD1234EFGH/heartbeat"},
		{"all responses", topics.AllResponses(), "display/+/response"},
		{"all statuses", topics.AllStatuses(), "display/+/status"},
		{"all heartbeats", topics.AllHeartbeats(), "display/+/heartbeat"},
		{"system status", topics.SystemStatus(), "display/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewTopicsEmptyPrefix(t *testing.T) {
	topics := NewTopics("")
	if topics.Prefix() != DefaultTopicPrefix {
		t.Errorf("Prefix() = %q, want %q", topics.Prefix(), DefaultTopicPrefix)
	}
}

func TestDeviceID(t *testing.T) {
	topics := NewTopics("display")

	tests := []struct {
		topic string
		want  string
	}{
		{"display/ABCD1234EFGH/heartbeat", "ABCD1234EFGH"},
		{"display/SIGN0001TEST/room/delete", "SIGN0001TEST"},
		{"display/orphan", ""},
		{"other/ABCD1234EFGH/heartbeat", ""},
		{"display", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := topics.DeviceID(tt.topic); got != tt.want {
				t.Errorf("DeviceID(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}
