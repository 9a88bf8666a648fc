package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/repository"
	"github.com/noah-isme/research-portal-api/pkg/config"
)

type bootstrapStore interface {
	Count(ctx context.Context) (int, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User, secret string) error
}

// BootstrapService seeds the default administrator identities.
type BootstrapService struct {
	repo   bootstrapStore
	cfg    config.BootstrapConfig
	logger *zap.Logger
}

// NewBootstrapService constructs a BootstrapService.
func NewBootstrapService(repo bootstrapStore, cfg config.BootstrapConfig, logger *zap.Logger) *BootstrapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BootstrapService{repo: repo, cfg: cfg, logger: logger}
}

// Run creates the default admin on an empty store and the superadmin when
// missing. It is safe to call on every start.
func (s *BootstrapService) Run(ctx context.Context) error {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count identities: %w", err)
	}
	if total == 0 {
		if err := s.seed(ctx, s.cfg.AdminName, s.cfg.AdminLegalID, s.cfg.AdminEmail, s.cfg.AdminPassword, models.RoleAdmin); err != nil {
			return err
		}
	}

	if s.cfg.SuperAdminEmail == "" {
		return nil
	}
	_, err = s.repo.FindByEmail(ctx, s.cfg.SuperAdminEmail)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lookup superadmin: %w", err)
	}
	return s.seed(ctx, s.cfg.SuperAdminName, s.cfg.SuperAdminLegalID, s.cfg.SuperAdminEmail, s.cfg.SuperAdminPassword, models.RoleSuperAdmin)
}

func (s *BootstrapService) seed(ctx context.Context, name, legalID, email, secret string, role models.UserRole) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash %s secret: %w", role, err)
	}
	user := &models.User{Name: name, LegalID: legalID, Email: email, PasswordHash: string(hash), Role: role}
	if err := s.repo.Create(ctx, user, secret); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// another instance won the race
			s.logger.Info("bootstrap identity already present", zap.String("email", email))
			return nil
		}
		return fmt.Errorf("create %s: %w", role, err)
	}
	s.logger.Info("bootstrap identity created", zap.String("email", user.Email), zap.String("role", string(role)))
	return nil
}
