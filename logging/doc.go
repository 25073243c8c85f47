// Package logging provides a minimal logging interface and adapters for decisionmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the bus, pipeline and persistence layer use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging and MeshLogger with decision helpers
//   - ZapAdapter for applications standardised on zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	rt, err := decisionmesh.New(func(o *decisionmesh.Options) { o.Logger = logger })
package logging
