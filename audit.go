package authkit

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// Audit action names emitted by the Service.
const (
	ActionRegister             = "REGISTER"
	ActionLogin                = "LOGIN"
	ActionLoginFailed          = "LOGIN_FAILED"
	ActionLogout               = "LOGOUT"
	ActionTokenRefresh         = "TOKEN_REFRESH"
	ActionRefreshReuse         = "REFRESH_REUSE"
	ActionPasswordChanged      = "PASSWORD_CHANGED"
	ActionPasswordResetRequest = "PASSWORD_RESET_REQUEST"
	ActionPasswordReset        = "PASSWORD_RESET"
	ActionEmailVerified        = "EMAIL_VERIFIED"
	ActionSessionRevoked       = "SESSION_REVOKED"
	ActionSessionsRevoked      = "SESSIONS_REVOKED"
)

// AuditEvent is the record handed to the AuditSink after each state
// transition. Metadata is redacted before it leaves the Service.
type AuditEvent struct {
	Time      time.Time         `json:"time"`
	Action    string            `json:"action"`
	UserID    string            `json:"userId,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events. Log is fire-and-forget: it must not
// block for long, and any failure it experiences is its own to swallow.
// The Service never aborts an operation over auditing.
type AuditSink interface {
	Log(ctx context.Context, event AuditEvent)
}

// NoopSink drops audit events.
type NoopSink struct{}

func (NoopSink) Log(context.Context, AuditEvent) {}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Log(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// sensitiveFieldMarkers is the denylist applied to metadata keys before an
// event is dispatched. Matching is by substring of the lowercased key.
var sensitiveFieldMarkers = []string{
	"password",
	"token",
	"secret",
	"hash",
	"authorization",
	"cookie",
}

const redactedValue = "[REDACTED]"

// redactMetadata replaces values whose key matches the sensitive-field
// denylist. It copies the map so callers can keep using theirs.
func redactMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		out[key] = value
		lower := strings.ToLower(key)
		for _, marker := range sensitiveFieldMarkers {
			if strings.Contains(lower, marker) {
				out[key] = redactedValue
				break
			}
		}
	}
	return out
}
