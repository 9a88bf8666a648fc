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

type sharedArchiveStore interface {
	Create(ctx context.Context, item *models.SharedArchive) error
	GetByID(ctx context.Context, id string) (*models.SharedArchive, error)
	List(ctx context.Context, filter models.SharedArchiveFilter) ([]models.SharedArchive, error)
	Update(ctx context.Context, item *models.SharedArchive) error
	Delete(ctx context.Context, id string) error
}

// CreateSharedArchiveRequest is the metadata sent with a shared upload.
type CreateSharedArchiveRequest struct {
	Folder           string  `json:"folder" form:"folder" validate:"omitempty,max=255"`
	Category         string  `json:"category" form:"category" validate:"omitempty,oneof=personal research"`
	IsPublic         bool    `json:"isPublic" form:"isPublic"`
	Description      string  `json:"description" form:"description" validate:"omitempty,max=2000"`
	Version          string  `json:"version" form:"version" validate:"omitempty,max=50"`
	Author           string  `json:"author" form:"author" validate:"omitempty,max=255"`
	Tags             string  `json:"tags" form:"tags" validate:"omitempty,max=500"`
	ResearchRecordID *string `json:"researchRecordId" form:"researchRecordId" validate:"omitempty,uuid"`
}

// UpdateSharedArchiveRequest lists the fields a shared archive owner may change.
type UpdateSharedArchiveRequest struct {
	Folder           *string `json:"folder" validate:"omitempty,max=255"`
	Category         *string `json:"category" validate:"omitempty,oneof=personal research"`
	IsPublic         *bool   `json:"isPublic"`
	Description      *string `json:"description" validate:"omitempty,max=2000"`
	Version          *string `json:"version" validate:"omitempty,max=50"`
	Author           *string `json:"author" validate:"omitempty,max=255"`
	Tags             *string `json:"tags" validate:"omitempty,max=500"`
	ResearchRecordID *string `json:"researchRecordId" validate:"omitempty,uuid"`
}

// SharedArchiveService manages uploads that can be published to every user.
type SharedArchiveService struct {
	repo      sharedArchiveStore
	research  researchRecordChecker
	pipeline  *FilePipeline
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSharedArchiveService constructs a SharedArchiveService.
func NewSharedArchiveService(repo sharedArchiveStore, research researchRecordChecker, pipeline *FilePipeline, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *SharedArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SharedArchiveService{repo: repo, research: research, pipeline: pipeline, audit: audit, validator: validate, logger: logger}
}

// Create stores the upload and its metadata owned by the caller.
func (s *SharedArchiveService) Create(ctx context.Context, actor *models.JWTClaims, req CreateSharedArchiveRequest, upload *StagedUpload) (*models.SharedArchive, error) {
	if err := policy.Authorize(actor, policy.ActionCreate, policy.Resource{Kind: models.KindSharedArchive}); err != nil {
		s.pipeline.Discard(upload)
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		s.pipeline.Discard(upload)
		return nil, appErrors.FromValidation(err, "invalid shared archive payload")
	}
	researchID := optionalID(req.ResearchRecordID)
	if err := s.checkResearchRecord(ctx, researchID); err != nil {
		s.pipeline.Discard(upload)
		return nil, err
	}

	file, err := s.pipeline.Admit(models.KindSharedArchive, actor.UserID, upload)
	if err != nil {
		return nil, err
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = models.CategoryPersonal
	}
	item := &models.SharedArchive{
		OwnerID:          actor.UserID,
		StoredFile:       *file,
		Folder:           folderOrDefault(req.Folder),
		Category:         category,
		IsPublic:         req.IsPublic,
		Description:      strings.TrimSpace(req.Description),
		Version:          strings.TrimSpace(req.Version),
		Author:           strings.TrimSpace(req.Author),
		Tags:             strings.TrimSpace(req.Tags),
		ResearchRecordID: researchID,
	}
	if err := s.pipeline.Persist(ctx, models.KindSharedArchive, file, func(ctx context.Context) error {
		return s.repo.Create(ctx, item)
	}); err != nil {
		return nil, appErrors.Internal(err, "failed to save shared archive")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionUpload, models.KindSharedArchive, item.ID,
		map[string]interface{}{"originalName": item.OriginalName, "isPublic": item.IsPublic})
	return item, nil
}

// Get returns an archive the caller owns or that is public.
func (s *SharedArchiveService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SharedArchive, error) {
	return s.load(ctx, actor, policy.ActionRead, id)
}

// List returns archives; non privileged callers only see public ones and their own.
func (s *SharedArchiveService) List(ctx context.Context, actor *models.JWTClaims, filter models.SharedArchiveFilter) ([]models.SharedArchive, error) {
	if err := policy.Authorize(actor, policy.ActionList, policy.Resource{Kind: models.KindSharedArchive}); err != nil {
		return nil, err
	}
	filter.VisibleTo = ""
	if !policy.Privileged(actor.Role) {
		filter.VisibleTo = actor.UserID
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list shared archives")
	}
	return items, nil
}

// Update applies the allow-listed fields.
func (s *SharedArchiveService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateSharedArchiveRequest) (*models.SharedArchive, error) {
	item, err := s.load(ctx, actor, policy.ActionUpdate, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid shared archive payload")
	}
	if req.Folder != nil {
		item.Folder = folderOrDefault(*req.Folder)
	}
	if req.Category != nil {
		item.Category = strings.TrimSpace(*req.Category)
	}
	if req.IsPublic != nil {
		item.IsPublic = *req.IsPublic
	}
	if req.Description != nil {
		item.Description = trimmed(req.Description)
	}
	if req.Version != nil {
		item.Version = trimmed(req.Version)
	}
	if req.Author != nil {
		item.Author = trimmed(req.Author)
	}
	if req.Tags != nil {
		item.Tags = trimmed(req.Tags)
	}
	if req.ResearchRecordID != nil {
		item.ResearchRecordID = optionalID(req.ResearchRecordID)
		if err := s.checkResearchRecord(ctx, item.ResearchRecordID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, notFoundOr(err, "shared archive")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionResourceEdit, models.KindSharedArchive, item.ID, req)
	return item, nil
}

// Delete removes the stored file and then the row.
func (s *SharedArchiveService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	item, err := s.load(ctx, actor, policy.ActionDelete, id)
	if err != nil {
		return err
	}
	if err := s.pipeline.Delete(item.Path); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "shared archive")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionResourceDrop, models.KindSharedArchive, id, nil)
	return nil
}

// Download resolves the stored file for streaming.
func (s *SharedArchiveService) Download(ctx context.Context, actor *models.JWTClaims, id string) (*models.FileDownload, error) {
	item, err := s.load(ctx, actor, policy.ActionDownload, id)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Download(&item.StoredFile)
}

func (s *SharedArchiveService) load(ctx context.Context, actor *models.JWTClaims, action policy.Action, id string) (*models.SharedArchive, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "shared archive")
	}
	if err := policy.Authorize(actor, action, policy.Resource{Kind: models.KindSharedArchive, OwnerID: item.OwnerID, Public: item.IsPublic}); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *SharedArchiveService) checkResearchRecord(ctx context.Context, id *string) error {
	if id == nil || s.research == nil {
		return nil
	}
	exists, err := s.research.Exists(ctx, *id)
	if err != nil {
		return appErrors.Internal(err, "failed to check research record")
	}
	if !exists {
		return appErrors.Field("researchRecordId", "research record does not exist")
	}
	return nil
}
