package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/policy"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

type personalArchiveStore interface {
	Create(ctx context.Context, item *models.PersonalArchive) error
	GetByID(ctx context.Context, id string) (*models.PersonalArchive, error)
	List(ctx context.Context, filter models.PersonalArchiveFilter) ([]models.PersonalArchive, error)
	Folders(ctx context.Context, ownerID string) ([]models.FolderSummary, error)
	Update(ctx context.Context, item *models.PersonalArchive) error
	Delete(ctx context.Context, id string) error
}

// CreatePersonalArchiveRequest is the metadata sent with a personal upload.
type CreatePersonalArchiveRequest struct {
	Description string `json:"description" form:"description" validate:"omitempty,max=2000"`
	Folder      string `json:"folder" form:"folder" validate:"omitempty,max=255"`
	Tags        string `json:"tags" form:"tags" validate:"omitempty,max=500"`
	Favorite    bool   `json:"favorite" form:"favorite"`
}

// UpdatePersonalArchiveRequest lists the fields an owner may change.
type UpdatePersonalArchiveRequest struct {
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Folder      *string `json:"folder" validate:"omitempty,max=255"`
	Tags        *string `json:"tags" validate:"omitempty,max=500"`
	Favorite    *bool   `json:"favorite"`
}

// PersonalArchiveService manages the private files of faculty members.
type PersonalArchiveService struct {
	repo      personalArchiveStore
	pipeline  *FilePipeline
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPersonalArchiveService constructs a PersonalArchiveService.
func NewPersonalArchiveService(repo personalArchiveStore, pipeline *FilePipeline, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *PersonalArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PersonalArchiveService{repo: repo, pipeline: pipeline, audit: audit, validator: validate, logger: logger}
}

// Create stores the upload in the caller's personal space.
func (s *PersonalArchiveService) Create(ctx context.Context, actor *models.JWTClaims, req CreatePersonalArchiveRequest, upload *StagedUpload) (*models.PersonalArchive, error) {
	if err := policy.Authorize(actor, policy.ActionCreate, policy.Resource{Kind: models.KindPersonalArchive}); err != nil {
		s.pipeline.Discard(upload)
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		s.pipeline.Discard(upload)
		return nil, appErrors.FromValidation(err, "invalid personal archive payload")
	}

	file, err := s.pipeline.Admit(models.KindPersonalArchive, actor.UserID, upload)
	if err != nil {
		return nil, err
	}
	item := &models.PersonalArchive{
		OwnerID:     actor.UserID,
		StoredFile:  *file,
		Description: strings.TrimSpace(req.Description),
		Folder:      folderOrDefault(req.Folder),
		Tags:        strings.TrimSpace(req.Tags),
		Favorite:    req.Favorite,
	}
	if err := s.pipeline.Persist(ctx, models.KindPersonalArchive, file, func(ctx context.Context) error {
		return s.repo.Create(ctx, item)
	}); err != nil {
		return nil, appErrors.Internal(err, "failed to save personal archive")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionUpload, models.KindPersonalArchive, item.ID,
		map[string]interface{}{"originalName": item.OriginalName, "folder": item.Folder})
	return item, nil
}

// Get returns one archive of the caller.
func (s *PersonalArchiveService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.PersonalArchive, error) {
	return s.load(ctx, actor, policy.ActionRead, id)
}

// List returns the caller's archives. Privileged callers may list any owner.
func (s *PersonalArchiveService) List(ctx context.Context, actor *models.JWTClaims, filter models.PersonalArchiveFilter) ([]models.PersonalArchive, error) {
	if err := policy.Authorize(actor, policy.ActionList, policy.Resource{Kind: models.KindPersonalArchive}); err != nil {
		return nil, err
	}
	if !policy.Privileged(actor.Role) || filter.OwnerID == "" {
		filter.OwnerID = actor.UserID
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list personal archives")
	}
	return filterByTag(items, filter.Tags), nil
}

// Folders counts the caller's archives per folder.
func (s *PersonalArchiveService) Folders(ctx context.Context, actor *models.JWTClaims) ([]models.FolderSummary, error) {
	if err := policy.Authorize(actor, policy.ActionList, policy.Resource{Kind: models.KindPersonalArchive}); err != nil {
		return nil, err
	}
	folders, err := s.repo.Folders(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list folders")
	}
	return folders, nil
}

// Update applies the allow-listed fields.
func (s *PersonalArchiveService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdatePersonalArchiveRequest) (*models.PersonalArchive, error) {
	item, err := s.load(ctx, actor, policy.ActionUpdate, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid personal archive payload")
	}
	if req.Description != nil {
		item.Description = trimmed(req.Description)
	}
	if req.Folder != nil {
		item.Folder = folderOrDefault(*req.Folder)
	}
	if req.Tags != nil {
		item.Tags = trimmed(req.Tags)
	}
	if req.Favorite != nil {
		item.Favorite = *req.Favorite
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, notFoundOr(err, "personal archive")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionResourceEdit, models.KindPersonalArchive, item.ID, req)
	return item, nil
}

// Delete removes the stored file and then the row.
func (s *PersonalArchiveService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	item, err := s.load(ctx, actor, policy.ActionDelete, id)
	if err != nil {
		return err
	}
	if err := s.pipeline.Delete(item.Path); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "personal archive")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionResourceDrop, models.KindPersonalArchive, id, nil)
	return nil
}

// Download resolves the stored file for streaming.
func (s *PersonalArchiveService) Download(ctx context.Context, actor *models.JWTClaims, id string) (*models.FileDownload, error) {
	item, err := s.load(ctx, actor, policy.ActionDownload, id)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Download(&item.StoredFile)
}

func (s *PersonalArchiveService) load(ctx context.Context, actor *models.JWTClaims, action policy.Action, id string) (*models.PersonalArchive, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "personal archive")
	}
	if err := policy.Authorize(actor, action, policy.Resource{Kind: models.KindPersonalArchive, OwnerID: item.OwnerID}); err != nil {
		return nil, err
	}
	return item, nil
}

func filterByTag(items []models.PersonalArchive, tag string) []models.PersonalArchive {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return items
	}
	out := make([]models.PersonalArchive, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Tags), tag) {
			out = append(out, item)
		}
	}
	return out
}
