package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/repository"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByLegalID(ctx context.Context, legalID string) (*models.User, error)
	Create(ctx context.Context, user *models.User, secret string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type accessCodeNotifier interface {
	NotifyAccessCode(ctx context.Context, notice AccessCodeNotice)
}

type accessCodeSource interface {
	Generate(ctx context.Context) (string, error)
}

// constraint name -> request field
var duplicateFields = map[string]string{
	"users_email_key":    "email",
	"users_legal_id_key": "legalId",
}

// RegistrationService issues identities from self registration.
type RegistrationService struct {
	repo      credentialStore
	codes     accessCodeSource
	policy    EmailPolicy
	notifier  accessCodeNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(repo credentialStore, codes accessCodeSource, policy EmailPolicy, notifier accessCodeNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator(policy)
	}
	return &RegistrationService{
		repo:      repo,
		codes:     codes,
		policy:    policy,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		hashCost:  bcrypt.DefaultCost,
	}
}

// Register validates the payload, derives the role from the email and stores
// the identity with a freshly generated access code.
func (s *RegistrationService) Register(ctx context.Context, req models.RegisterRequest) (*models.Registration, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	req.LegalID = strings.TrimSpace(req.LegalID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid registration payload")
	}

	if err := s.ensureUnique(ctx, req.Email, req.LegalID); err != nil {
		return nil, err
	}

	code, err := s.codes.Generate(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash access code")
	}

	user := &models.User{
		Name:         req.Name,
		LegalID:      req.LegalID,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         s.policy.RoleFor(req.Email),
	}
	if err := s.repo.Create(ctx, user, code); err != nil {
		return nil, duplicateConflict(err, "failed to create user")
	}

	s.metrics.RecordRegistration(string(user.Role))
	s.audit(ctx, user, req)
	if s.notifier != nil {
		s.notifier.NotifyAccessCode(ctx, AccessCodeNotice{Email: user.Email, Name: user.Name, Code: code, Role: user.Role})
	}
	s.logger.Info("identity registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	return &models.Registration{User: user, AccessCode: code}, nil
}

func (s *RegistrationService) ensureUnique(ctx context.Context, email, legalID string) error {
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return appErrors.WithDetails(appErrors.ErrConflict, "email is already registered", appErrors.FieldError{Field: "email", Message: "is already registered"})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Internal(err, "failed to check email")
	}
	if _, err := s.repo.FindByLegalID(ctx, legalID); err == nil {
		return appErrors.WithDetails(appErrors.ErrConflict, "legal id is already registered", appErrors.FieldError{Field: "legalId", Message: "is already registered"})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Internal(err, "failed to check legal id")
	}
	return nil
}

func (s *RegistrationService) audit(ctx context.Context, user *models.User, req models.RegisterRequest) {
	payload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionRegister,
		Resource:   string(models.KindIdentity),
		ResourceID: &user.ID,
		NewValues:  payload,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record registration audit log", zap.Error(err))
	}
}

// duplicateConflict maps a unique violation to a Conflict naming the field.
func duplicateConflict(err error, message string) error {
	var dup *repository.DuplicateError
	if !errors.As(err, &dup) {
		return appErrors.Internal(err, message)
	}
	field, ok := duplicateFields[dup.Constraint]
	if !ok {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "resource already exists")
	}
	out := appErrors.WithDetails(appErrors.ErrConflict, field+" is already registered", appErrors.FieldError{Field: field, Message: "is already registered"})
	out.Err = err
	return out
}
