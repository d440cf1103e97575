package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditInitialized   AuditEvent = "encryption_initialized"
	AuditRotated       AuditEvent = "keys_rotated"
	AuditDisabled      AuditEvent = "encryption_disabled"
	AuditEncrypted     AuditEvent = "message_encrypted"
	AuditDecrypted     AuditEvent = "message_decrypted"
	AuditDecryptDenied AuditEvent = "decrypt_denied"
	AuditAuthFailure   AuditEvent = "auth_failure"
	AuditMemberAdded   AuditEvent = "member_added"
	AuditMemberRemoved AuditEvent = "member_removed"
	AuditStepUpEnroll  AuditEvent = "step_up_enrolled"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry. Attributes carry identifiers
// only; key material and plaintext never reach the log.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}

// logEvent is a convenience for events with a user and crew ID.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, userID, crewID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
		slog.String("crew_id", crewID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a failed or denied request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
