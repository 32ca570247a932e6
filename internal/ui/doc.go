// Package ui renders ogctl's terminal output.
//
// It provides bordered result boxes, command headers, confirmation prompts
// and a registry alert notifier, all styled with Lip Gloss. Output is plain
// text written to an io.Writer; nothing here takes over the terminal. The
// interactive dashboard lives in the tui package.
//
// Errors from the controller package are rendered with their
// troubleshooting hint, and when the cause is a device setting (wrong key,
// unreachable address) the box ends with the ogctl command that changes it.
//
// # Logging Integration
//
// zap logging is silent unless OGCTL_LOG_LEVEL or --log-level is set, so
// styled output is not interleaved with log lines by default.
package ui
