// Package influxdb writes SignGrid session telemetry to InfluxDB v2.
//
// The session engine records heartbeat observations, session lifecycle
// events, and device-reported protocol errors. Writes are non-blocking
// and batched; async write failures are surfaced through SetOnError.
//
// InfluxDB is optional: when disabled in configuration, Connect returns
// ErrDisabled and callers run without telemetry.
package influxdb
