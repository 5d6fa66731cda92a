// Package logx wraps zerolog behind a small structured logging API.
//
// A Logger is a value type; the zero value is a safe no-op. Loggers created
// from a Service stay "live" across Service.Apply() calls, so log level and
// sink changes from a config reload take effect without re-plumbing loggers
// through the application.
package logx
