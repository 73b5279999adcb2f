package models

import "time"

type AuditEventType string

const (
	AuditRegistered      AuditEventType = "registered"
	AuditLogin           AuditEventType = "login"
	AuditLoginFailed     AuditEventType = "login_failed"
	AuditLogout          AuditEventType = "logout"
	AuditPasswordChanged AuditEventType = "password_changed"
	AuditRefreshRejected AuditEventType = "refresh_rejected"
	AuditDeactivated     AuditEventType = "deactivated"
	AuditActivated       AuditEventType = "activated"
	AuditRoleChanged     AuditEventType = "role_changed"
	AuditDeleted         AuditEventType = "deleted"
)

type AuditEvent struct {
	ID         string
	UserID     string
	ActorID    string
	Type       AuditEventType
	Detail     string
	IPAddress  string
	OccurredAt time.Time
}
