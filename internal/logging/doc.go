// Package logging provides structured logging for ogctl.
//
// This package wraps a zap logger with a few convenience functions. Logging is
// silent by default so that CLI output stays clean; set a level with the
// --log-level flag or the OGCTL_LOG_LEVEL environment variable to see it.
//
// # Log Levels
//
//   - Debug: request URLs, poll ticks, raw controller responses
//   - Info: device selection, bridge and MQTT lifecycle
//   - Warn: storage problems, controller rejections
//   - Error: failures that end a command
//
// # Structured Logging
//
//	logging.Info("Device selected",
//	    zap.Int("index", 1),
//	    zap.String("method", "IP"),
//	)
//
// # Output
//
// Logs go to stderr in console format so that stdout can carry command
// output (including --format json) untouched.
package logging
