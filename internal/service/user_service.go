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
	"github.com/noah-isme/research-portal-api/internal/policy"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

// EscrowUnavailable is shown when an identity has no escrowed secret.
const EscrowUnavailable = "unavailable"

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.UserWithEscrow, int, error)
	ListAll(ctx context.Context) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	GetEscrow(ctx context.Context, userID string) (*models.CredentialEscrow, error)
	Update(ctx context.Context, user *models.User) error
	UpdateWithSecret(ctx context.Context, user *models.User, passwordHash, plaintext string) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type rosterExporter interface {
	Roster(users []models.User, format string) (*ExportedFile, error)
}

// UpdateUserRequest is a partial update. Role and Password are reserved for administrators.
type UpdateUserRequest struct {
	Name     *string          `json:"name" validate:"omitempty,min=3,max=70"`
	Email    *string          `json:"email" validate:"omitempty,email,min=10,max=50"`
	LegalID  *string          `json:"legalId" validate:"omitempty,legal_id"`
	Role     *models.UserRole `json:"role" validate:"omitempty,oneof=SUPERADMIN ADMIN FACULTY STUDENT"`
	Password *string          `json:"password" validate:"omitempty,min=4,max=72"`
}

// UserView is an identity as administrators see it.
type UserView struct {
	models.User
	AccessCode string `json:"accessCode,omitempty"`
}

// UserService handles identity administration.
type UserService struct {
	repo      userRepository
	exporter  rosterExporter
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, exporter rosterExporter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator(EmailPolicy{})
	}
	if exporter == nil {
		exporter = NewExportService(nil, nil)
	}
	return &UserService{repo: repo, exporter: exporter, validator: validate, logger: logger, hashCost: bcrypt.DefaultCost}
}

// List returns paginated identities with their escrowed access code.
func (s *UserService) List(ctx context.Context, actor *models.JWTClaims, filter models.UserFilter) ([]UserView, *models.Pagination, error) {
	if err := policy.Authorize(actor, policy.ActionList, policy.Resource{Kind: models.KindIdentity}); err != nil {
		return nil, nil, err
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}

	views := make([]UserView, 0, len(rows))
	for _, row := range rows {
		view := UserView{User: row.User, AccessCode: EscrowUnavailable}
		if row.EscrowSecret != nil {
			view.AccessCode = *row.EscrowSecret
		}
		views = append(views, view)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return views, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one identity. Only privileged callers see the access code.
func (s *UserService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*UserView, error) {
	if err := policy.Authorize(actor, policy.ActionRead, policy.Resource{Kind: models.KindIdentity, OwnerID: id}); err != nil {
		return nil, err
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &UserView{User: *user}
	if policy.Privileged(actor.Role) {
		view.AccessCode = EscrowUnavailable
		escrow, err := s.repo.GetEscrow(ctx, id)
		switch {
		case err == nil:
			view.AccessCode = escrow.PlaintextSecret
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Internal(err, "failed to load escrow")
		}
	}
	return view, nil
}

// Update applies a partial update. Callers may edit their own profile;
// administrators may also change role and reset the access code.
func (s *UserService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateUserRequest) (*models.User, error) {
	if err := policy.Authorize(actor, policy.ActionUpdate, policy.Resource{Kind: models.KindIdentity, OwnerID: id}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid update payload")
	}
	privileged := policy.Privileged(actor.Role)
	if !privileged && (req.Role != nil || req.Password != nil) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may change role or access code")
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Role != nil && (*req.Role == models.RoleSuperAdmin || user.Role == models.RoleSuperAdmin) && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a superadmin may grant or revoke superadmin")
	}

	before, _ := json.Marshal(map[string]interface{}{"name": user.Name, "email": user.Email, "legalId": user.LegalID, "role": user.Role})
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = normalizeEmail(*req.Email)
	}
	if req.LegalID != nil {
		user.LegalID = strings.TrimSpace(*req.LegalID)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}

	if err := s.write(ctx, user, req.Password); err != nil {
		return nil, err
	}
	after, _ := json.Marshal(map[string]interface{}{"name": user.Name, "email": user.Email, "legalId": user.LegalID, "role": user.Role})
	s.audit(ctx, actor, models.AuditActionUserUpdate, user.ID, before, after)
	if req.Password != nil {
		s.audit(ctx, actor, models.AuditActionPasswordReset, user.ID, nil, []byte(`{"status":"reset"}`))
	}
	return user, nil
}

// write persists the profile and, when secret is set, the new access code in
// the same transaction.
func (s *UserService) write(ctx context.Context, user *models.User, secret *string) error {
	var err error
	if secret == nil {
		err = s.repo.Update(ctx, user)
	} else {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(*secret), s.hashCost)
		if hashErr != nil {
			return appErrors.Internal(hashErr, "failed to hash access code")
		}
		err = s.repo.UpdateWithSecret(ctx, user, string(hash), *secret)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return duplicateConflict(err, "failed to update user")
	}
	return nil
}

// Delete removes an identity other than the caller's own.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if err := policy.Authorize(actor, policy.ActionDelete, policy.Resource{Kind: models.KindIdentity, OwnerID: id}); err != nil {
		return err
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only a superadmin may delete a superadmin")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to delete user")
	}
	before, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role})
	s.audit(ctx, actor, models.AuditActionUserDelete, id, before, nil)
	return nil
}

// Export renders every identity as csv or pdf.
func (s *UserService) Export(ctx context.Context, actor *models.JWTClaims, format string) (*ExportedFile, error) {
	if err := policy.Authorize(actor, policy.ActionExport, policy.Resource{Kind: models.KindIdentity}); err != nil {
		return nil, err
	}
	users, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load users")
	}
	return s.exporter.Roster(users, format)
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}

func (s *UserService) audit(ctx context.Context, actor *models.JWTClaims, action, id string, before, after []byte) {
	actorID := actor.UserID
	ip, userAgent := models.ClientFrom(ctx)
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   string(models.KindIdentity),
		ResourceID: &id,
		OldValues:  before,
		NewValues:  after,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}
