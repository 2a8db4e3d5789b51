package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the leading segment for all sign topics when no
// prefix is configured.
const DefaultTopicPrefix = "display"

// Topics builds the per-device topic layout used by the MQTT transport.
//
// Every provisioned sign owns a topic subtree under the configured prefix:
//
//	topics := mqtt.NewTopics("display")
//	topics.Message("ABCD1234EFGH") // "display/ABCD1234EFGH/message"
//
// Server-to-device topics carry encoded protocol frames; device-to-server
// topics (response, status, heartbeat) carry frames or device status JSON.
type Topics struct {
	prefix string
}

// NewTopics creates a topic builder for the given prefix.
// An empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the configured topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// Message returns the topic for text/image message frames to a device.
//
// Example: display/ABCD1234EFGH/message
func (t Topics) Message(deviceID string) string {
	return fmt.Sprintf("%s/%s/message", t.prefix, deviceID)
}

// Image returns the topic for image payload frames to a device.
//
// Example: display/ABCD1234EFGH/image
func (t Topics) Image(deviceID string) string {
	return fmt.Sprintf("%s/%s/image", t.prefix, deviceID)
}

// Multimedia returns the topic for video payload frames to a device.
//
// Example: display/ABCD1234EFGH/multimedia
func (t Topics) Multimedia(deviceID string) string {
	return fmt.Sprintf("%s/%s/multimedia", t.prefix, deviceID)
}

// Command returns the topic for control frames (time sync, brightness) to a device.
//
// Example: display/ABCD1234EFGH/command
func (t Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", t.prefix, deviceID)
}

// RoomDelete returns the topic for single-room delete frames to a device.
//
// Example: display/ABCD1234EFGH/room/delete
func (t Topics) RoomDelete(deviceID string) string {
	return fmt.Sprintf("%s/%s/room/delete", t.prefix, deviceID)
}

// AllDelete returns the topic for delete-all frames to a device.
//
// Example: display/ABCD1234EFGH/all/delete
func (t Topics) AllDelete(deviceID string) string {
	return fmt.Sprintf("%s/%s/all/delete", t.prefix, deviceID)
}

// Response returns the topic a device publishes command responses to.
//
// Example: display/ABCD1234EFGH/response
func (t Topics) Response(deviceID string) string {
	return fmt.Sprintf("%s/%s/response", t.prefix, deviceID)
}

// Status returns the topic a device publishes its status to.
//
// Example: display/ABCD1234EFGH/status
func (t Topics) Status(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", t.prefix, deviceID)
}

// Heartbeat returns the topic a device publishes heartbeats to.
//
// Example: display/ABCD1234EFGH/heartbeat
func (t Topics) Heartbeat(deviceID string) string {
	return fmt.Sprintf("%s/%s/heartbeat", t.prefix, deviceID)
}

// AllResponses returns a pattern matching every device's response topic.
//
// Pattern: display/+/response
func (t Topics) AllResponses() string {
	return fmt.Sprintf("%s/+/response", t.prefix)
}

// AllStatuses returns a pattern matching every device's status topic.
//
// Pattern: display/+/status
func (t Topics) AllStatuses() string {
	return fmt.Sprintf("%s/+/status", t.prefix)
}

// AllHeartbeats returns a pattern matching every device's heartbeat topic.
//
// Pattern: display/+/heartbeat
func (t Topics) AllHeartbeats() string {
	return fmt.Sprintf("%s/+/heartbeat", t.prefix)
}

// SystemStatus returns the core's own status topic (LWT target).
//
// Example: display/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix)
}

// DeviceID extracts the device identifier from a per-device topic.
// Returns "" if the topic does not match the {prefix}/{deviceId}/... shape.
func (t Topics) DeviceID(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/")
	if !ok {
		return ""
	}
	id, _, found := strings.Cut(rest, "/")
	if !found {
		return ""
	}
	return id
}
