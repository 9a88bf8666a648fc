package models

import "time"

// UserRole represents the available roles, ordered by privilege.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleFaculty    UserRole = "FACULTY"
	RoleStudent    UserRole = "STUDENT"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleFaculty, RoleStudent:
		return true
	default:
		return false
	}
}

// User represents an identity stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	LegalID      string    `db:"legal_id" json:"legalId"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Info returns the token facing subset of the identity.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// CredentialEscrow keeps the privileged readable copy of a generated or admin set secret.
type CredentialEscrow struct {
	UserID          string    `db:"user_id" json:"userId"`
	PlaintextSecret string    `db:"plaintext_secret" json:"-"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// UserWithEscrow is a listing row joined with the escrowed secret, if any.
type UserWithEscrow struct {
	User
	EscrowSecret *string `db:"plaintext_secret" json:"-"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
