// Package transport connects sign sessions to their carriers.
//
// Two adapters exist. TCPServer accepts direct device connections on the
// fleet port and runs a framed read loop per connection. MQTTAdapter
// multiplexes the fleet over one broker connection using per-device
// topics, with the server initiating each session.
//
// Both adapters are ignorant of session semantics: they establish links,
// hand them to a SessionBuilder supplied by the engine, and shuttle
// frames. Retry provides the capped exponential backoff used for command
// dispatch.
package transport
