package influxdb

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Measurement names written by the session engine.
const (
	// measurementHeartbeat records every heartbeat-refreshing frame per device.
	measurementHeartbeat = "sign_heartbeat"

	// measurementSession records session lifecycle events (connect, verify,
	// evict, liveness lost, disconnect).
	measurementSession = "sign_session"

	// measurementError records device-reported protocol errors.
	measurementError = "sign_error"
)

// WriteHeartbeat records a heartbeat observation for a device.
//
// Parameters:
//   - deviceID: The sign's device identifier
//   - source: Liveness source ("transport", "inferred", "synthetic")
func (c *Client) WriteHeartbeat(deviceID, source string) {
	if !c.IsConnected() {
		return
	}

	point := influxdb2.NewPoint(
		measurementHeartbeat,
		map[string]string{
			"device_id": deviceID,
			"source":    source,
		},
		map[string]interface{}{
			"received": 1,
		},
		time.Now().UTC(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteSessionEvent records a session lifecycle event for a device.
//
// Parameters:
//   - deviceID: The sign's device identifier
//   - event: Lifecycle event name ("connected", "verified", "evicted",
//     "liveness_lost", "disconnected")
func (c *Client) WriteSessionEvent(deviceID, event string) {
	if !c.IsConnected() {
		return
	}

	point := influxdb2.NewPoint(
		measurementSession,
		map[string]string{
			"device_id": deviceID,
			"event":     event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now().UTC(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteDeviceError records a device-reported protocol error.
//
// Parameters:
//   - deviceID: The sign's device identifier
//   - code: The error code byte from the ErrorResponse frame
func (c *Client) WriteDeviceError(deviceID string, code byte) {
	if !c.IsConnected() {
		return
	}

	point := influxdb2.NewPoint(
		measurementError,
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"code": int(code),
		},
		time.Now().UTC(),
	)
	c.writeAPI.WritePoint(point)
}
