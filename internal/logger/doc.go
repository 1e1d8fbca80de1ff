// Package logger provides leveled, component-scoped logging for ytstreams.
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentSession)
//	log.Info("cookies refreshed", map[string]interface{}{
//		"count": 12,
//	})
//
// Cookie values must never be passed as fields; log names and counts only.
package logger
