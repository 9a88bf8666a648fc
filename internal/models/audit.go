package models

import (
	"context"
	"time"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionRegister      = "USER_REGISTER"
	AuditActionLogin         = "LOGIN"
	AuditActionUserUpdate    = "USER_UPDATE"
	AuditActionUserDelete    = "USER_DELETE"
	AuditActionPasswordReset = "PASSWORD_RESET"
	AuditActionUpload        = "RESOURCE_CREATE"
	AuditActionResourceEdit  = "RESOURCE_UPDATE"
	AuditActionResourceDrop  = "RESOURCE_DELETE"
	AuditActionOrphanSweep   = "STORAGE_RECONCILE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type clientKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClient attaches the caller's address and user agent for audit rows.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

// ClientFrom returns what WithClient stored, or empty strings.
func ClientFrom(ctx context.Context) (ip, userAgent string) {
	if info, ok := ctx.Value(clientKey{}).(clientInfo); ok {
		return info.ip, info.userAgent
	}
	return "", ""
}
