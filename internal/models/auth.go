package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest is the self registration payload.
type RegisterRequest struct {
	Name      string `json:"name" validate:"required,min=3,max=70"`
	Email     string `json:"email" validate:"required,email,min=10,max=50,institutional_email"`
	LegalID   string `json:"legalId" validate:"required,legal_id"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// Registration is the outcome of a successful registration. AccessCode is
// delivered out of band and never serialized.
type Registration struct {
	User       *User  `json:"user"`
	AccessCode string `json:"-"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresIn int64     `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserInfo  `json:"user"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

// JWTClaims is the bearer token payload. The role is captured at issuance
// and is not refreshed until the holder logs in again.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
