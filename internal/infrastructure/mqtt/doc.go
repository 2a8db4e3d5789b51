// Package mqtt provides MQTT client connectivity for SignGrid Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Frame publishing to per-device topics with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is the second transport path to LED signs: signs that sit behind a
// broker (cellular gateways, shared venue networks) exchange the same
// binary protocol frames as direct-TCP signs, carried as MQTT payloads on
// a per-device topic subtree:
//
//	SignGrid Core ↔ MQTT Broker ↔ Sign gateway/firmware
//
// Server-to-device topics ({prefix}/{deviceId}/message, /command,
// /room/delete, ...) carry encoded frames; device-to-server topics
// (/response, /status, /heartbeat) carry frames or status JSON. The
// broker gives no per-device disconnect signal, so "connected" on this
// path is inferred from status and heartbeat recency - a weaker liveness
// signal than the TCP listener's socket-level disconnects.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllHeartbeats(), 1,
//	    func(topic string, payload []byte) error {
//	        // refresh session liveness
//	        return nil
//	    })
//
//	client.PublishFrame(topics.Message("ABCD1234EFGH"), frame)
package mqtt
