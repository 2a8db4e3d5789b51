// Package config loads and validates SignGrid Core configuration.
//
// Configuration is read from a YAML file, with hardcoded defaults below it
// and SIGNGRID_* environment variables above it:
//
//  1. Default values (hardcoded)
//  2. YAML file values
//  3. Environment variables (SIGNGRID_DATABASE_PATH, SIGNGRID_MQTT_HOST, ...)
//
// The engine-facing sections cover the TCP listener (port, handshake and
// send timeouts), heartbeat liveness (check interval, expiry timeout), the
// outbound retry policy, and the MQTT transport (broker, per-device topic
// prefix, binary vs hex payload encoding).
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	listener, err := transport.Listen(cfg.TCP, ...)
package config
