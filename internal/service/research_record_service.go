package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/policy"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

const researchCachePattern = "research:*"

type researchRecordStore interface {
	Create(ctx context.Context, record *models.ResearchRecord) error
	GetByID(ctx context.Context, id string) (*models.ResearchRecord, error)
	List(ctx context.Context, filter models.ResearchRecordFilter) ([]models.ResearchRecord, error)
	Update(ctx context.Context, record *models.ResearchRecord) error
	Delete(ctx context.Context, id string) error
}

// CreateResearchRecordRequest describes a new research entry.
type CreateResearchRecordRequest struct {
	Title       string `json:"title" form:"title" validate:"required,min=5,max=500"`
	Author      string `json:"author" form:"author" validate:"required,min=3,max=255"`
	CoAuthor    string `json:"coAuthor" form:"coAuthor" validate:"omitempty,max=255"`
	Year        int    `json:"year" form:"year" validate:"required,year_window=1900:5"`
	Description string `json:"description" form:"description" validate:"required,min=10,max=2000"`
}

// UpdateResearchRecordRequest lists the editable research fields.
type UpdateResearchRecordRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=5,max=500"`
	Author      *string `json:"author" validate:"omitempty,min=3,max=255"`
	CoAuthor    *string `json:"coAuthor" validate:"omitempty,max=255"`
	Year        *int    `json:"year" validate:"omitempty,year_window=1900:5"`
	Description *string `json:"description" validate:"omitempty,min=10,max=2000"`
}

// ResearchRecordService manages research entries and their optional document.
type ResearchRecordService struct {
	repo      researchRecordStore
	pipeline  *FilePipeline
	cache     *CacheService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResearchRecordService constructs a ResearchRecordService. cache may be nil.
func NewResearchRecordService(repo researchRecordStore, pipeline *FilePipeline, cache *CacheService, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *ResearchRecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator(EmailPolicy{})
	}
	return &ResearchRecordService{repo: repo, pipeline: pipeline, cache: cache, audit: audit, validator: validate, logger: logger}
}

// Create stores a research record, with its document when upload is set.
func (s *ResearchRecordService) Create(ctx context.Context, actor *models.JWTClaims, req CreateResearchRecordRequest, upload *StagedUpload) (*models.ResearchRecord, error) {
	if err := policy.Authorize(actor, policy.ActionCreate, policy.Resource{Kind: models.KindResearchRecord}); err != nil {
		s.pipeline.Discard(upload)
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		s.pipeline.Discard(upload)
		return nil, appErrors.FromValidation(err, "invalid research record payload")
	}

	var file *models.StoredFile
	if upload != nil {
		admitted, err := s.pipeline.Admit(models.KindResearchRecord, actor.UserID, upload)
		if err != nil {
			return nil, err
		}
		file = admitted
	}
	record := &models.ResearchRecord{
		Title:       strings.TrimSpace(req.Title),
		Author:      strings.TrimSpace(req.Author),
		CoAuthor:    strings.TrimSpace(req.CoAuthor),
		Year:        req.Year,
		Description: strings.TrimSpace(req.Description),
		Attachment:  models.AttachmentOf(file),
		CreatedBy:   actor.UserID,
	}
	if err := s.pipeline.Persist(ctx, models.KindResearchRecord, file, func(ctx context.Context) error {
		return s.repo.Create(ctx, record)
	}); err != nil {
		return nil, appErrors.Internal(err, "failed to save research record")
	}
	s.invalidate(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionUpload, models.KindResearchRecord, record.ID,
		map[string]interface{}{"title": record.Title, "hasFile": file != nil})
	return record, nil
}

// Get returns a research record, served from cache when possible.
func (s *ResearchRecordService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ResearchRecord, error) {
	if err := policy.Authorize(actor, policy.ActionRead, policy.Resource{Kind: models.KindResearchRecord}); err != nil {
		return nil, err
	}
	key := "research:item:" + id
	var cached models.ResearchRecord
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "research record")
	}
	s.store(ctx, key, record)
	return record, nil
}

// List returns research records matching filter.
func (s *ResearchRecordService) List(ctx context.Context, actor *models.JWTClaims, filter models.ResearchRecordFilter) ([]models.ResearchRecord, error) {
	if err := policy.Authorize(actor, policy.ActionList, policy.Resource{Kind: models.KindResearchRecord}); err != nil {
		return nil, err
	}
	year := 0
	if filter.Year != nil {
		year = *filter.Year
	}
	key := fmt.Sprintf("research:list:%d:%s", year, strings.ToLower(strings.TrimSpace(filter.Author)))
	var cached []models.ResearchRecord
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list research records")
	}
	s.store(ctx, key, records)
	return records, nil
}

// Update applies the allow-listed fields and, when upload is set, replaces the document.
func (s *ResearchRecordService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateResearchRecordRequest, upload *StagedUpload) (*models.ResearchRecord, error) {
	record, err := s.load(ctx, actor, policy.ActionUpdate, id)
	if err != nil {
		s.pipeline.Discard(upload)
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		s.pipeline.Discard(upload)
		return nil, appErrors.FromValidation(err, "invalid research record payload")
	}
	if req.Title != nil {
		record.Title = trimmed(req.Title)
	}
	if req.Author != nil {
		record.Author = trimmed(req.Author)
	}
	if req.CoAuthor != nil {
		record.CoAuthor = trimmed(req.CoAuthor)
	}
	if req.Year != nil {
		record.Year = *req.Year
	}
	if req.Description != nil {
		record.Description = trimmed(req.Description)
	}

	previous := record.File()
	var file *models.StoredFile
	if upload != nil {
		if file, err = s.pipeline.Admit(models.KindResearchRecord, record.CreatedBy, upload); err != nil {
			return nil, err
		}
		record.Attachment = models.AttachmentOf(file)
	}
	if err := s.pipeline.Persist(ctx, models.KindResearchRecord, file, func(ctx context.Context) error {
		return s.repo.Update(ctx, record)
	}); err != nil {
		return nil, notFoundOr(err, "research record")
	}
	if file != nil && previous != nil {
		s.pipeline.Remove(previous.Path)
	}
	s.invalidate(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionResourceEdit, models.KindResearchRecord, record.ID, req)
	return record, nil
}

// Delete removes the document, if any, and then the row.
func (s *ResearchRecordService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	record, err := s.load(ctx, actor, policy.ActionDelete, id)
	if err != nil {
		return err
	}
	if file := record.File(); file != nil {
		if err := s.pipeline.Delete(file.Path); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "research record")
	}
	s.invalidate(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionResourceDrop, models.KindResearchRecord, id, nil)
	return nil
}

// Download resolves the record's document for streaming.
func (s *ResearchRecordService) Download(ctx context.Context, actor *models.JWTClaims, id string) (*models.FileDownload, error) {
	record, err := s.load(ctx, actor, policy.ActionDownload, id)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Download(record.File())
}

func (s *ResearchRecordService) load(ctx context.Context, actor *models.JWTClaims, action policy.Action, id string) (*models.ResearchRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "research record")
	}
	if err := policy.Authorize(actor, action, policy.Resource{Kind: models.KindResearchRecord, OwnerID: record.CreatedBy}); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *ResearchRecordService) store(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("failed to cache research records", zap.String("key", key), zap.Error(err))
	}
}

func (s *ResearchRecordService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, researchCachePattern); err != nil {
		s.logger.Warn("failed to invalidate research cache", zap.Error(err))
	}
}
