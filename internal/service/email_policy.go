package service

import (
	"strings"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/pkg/config"
)

// EmailPolicy decides which addresses may register and the role they receive.
type EmailPolicy struct {
	staffSuffix   string
	studentSuffix string
	adminEmail    string
}

// NewEmailPolicy builds the policy from registration settings.
func NewEmailPolicy(cfg config.RegistrationConfig) EmailPolicy {
	return EmailPolicy{
		staffSuffix:   "@" + strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.StaffDomain), "@")),
		studentSuffix: "@" + strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.StudentDomain), "@")),
		adminEmail:    strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
	}
}

// RoleFor derives the role of a new identity from its email. It is total:
// staff addresses are FACULTY and everything else is STUDENT.
func (p EmailPolicy) RoleFor(email string) models.UserRole {
	if p.staffSuffix != "@" && strings.HasSuffix(normalizeEmail(email), p.staffSuffix) {
		return models.RoleFaculty
	}
	return models.RoleStudent
}

// Accepts reports whether the address may self register.
func (p EmailPolicy) Accepts(email string) bool {
	email = normalizeEmail(email)
	if email == "" {
		return false
	}
	if p.adminEmail != "" && email == p.adminEmail {
		return true
	}
	if p.staffSuffix != "@" && strings.HasSuffix(email, p.staffSuffix) {
		return true
	}
	return p.studentSuffix != "@" && strings.HasSuffix(email, p.studentSuffix)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
