// Package logging provides structured logging for SignGrid Core.
//
// It wraps log/slog with level filtering, JSON or text output, and default
// service/version fields. Components derive their own loggers with With:
//
//	log := logging.New(cfg.Logging, version)
//	tcpLog := log.With("component", "tcp")
package logging
