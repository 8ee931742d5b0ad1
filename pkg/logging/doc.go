// Package logging provides subsystem-tagged structured logging for webauth.
//
// The package wraps Go's standard slog package and keeps a single process-wide
// logger configured at startup. Every entry carries a subsystem attribute so
// output can be filtered by component.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, os.Stderr, logging.FormatText)
//
//	logging.Info("Config", "Loaded configuration from %s", path)
//	logging.Debug("authflow", "Navigation started: %s", url)
//	logging.Error("browser", err, "Failed to launch browser")
//
// # Audit Logging
//
// Security-relevant events (credential material received, flows persisted or
// taken from a correlation store) are logged through Audit:
//
//	logging.Audit("authflow", "flow_taken", slog.String("flow_id", id))
//
// Audit events are logged at INFO level with a SECURITY_AUDIT prefix. Token
// values must never be passed as attributes.
package logging
