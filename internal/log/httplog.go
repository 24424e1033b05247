package log

import (
	"time"
)

// HTTPLogEntry represents a completed HTTP request/response
type HTTPLogEntry struct {
	Method     string
	Path       string
	Status     int
	Duration   time.Duration
	Size       int
	RemoteAddr string
	UserAgent  string
	RequestID  string
}

// LogHTTPRequest writes one structured access log line for a served request.
// 5xx responses are logged at error level.
func LogHTTPRequest(e HTTPLogEntry) {
	fields := []interface{}{
		"method", e.Method,
		"path", e.Path,
		"status", e.Status,
		"duration_ms", e.Duration.Milliseconds(),
		"size", e.Size,
		"remote_addr", e.RemoteAddr,
		"user_agent", e.UserAgent,
	}
	if e.RequestID != "" {
		fields = append(fields, "request_id", e.RequestID)
	}

	if e.Status >= 500 {
		GetSugaredLogger().Errorw("http request", fields...)
		return
	}
	GetSugaredLogger().Infow("http request", fields...)
}
