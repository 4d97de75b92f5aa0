// Package pkg provides shared utilities for the softexec host and device stacks.
//
// This package contains common functionality used across the codec, frame
// protocol, host session and device simulator, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for transport, session and admission failures
//   - Device command error codes carried by NACK frames
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.ConfigureLogging(pkg.LogOptions{Level: slog.LevelDebug, JSON: true})
//	pkg.LogInfo(pkg.ComponentHost, "program loaded", "routines", 3)
//
// Attributes named routine or token holding integers are printed in hex.
//
// # Errors
//
// Failures are reported as sentinel values and wrapped with context:
//
//	if errors.Is(err, pkg.ErrProgramActive) {
//	    // Clear the device before loading again
//	}
package pkg
