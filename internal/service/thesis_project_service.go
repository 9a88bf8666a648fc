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

const thesisCachePattern = "thesis:*"

type thesisProjectStore interface {
	Create(ctx context.Context, project *models.ThesisProject) error
	GetByID(ctx context.Context, id string) (*models.ThesisProject, error)
	List(ctx context.Context, filter models.ThesisProjectFilter) ([]models.ThesisProject, error)
	Update(ctx context.Context, project *models.ThesisProject) error
	Delete(ctx context.Context, id string) error
}

// CreateThesisProjectRequest describes a new thesis.
type CreateThesisProjectRequest struct {
	Title       string `json:"title" form:"title" validate:"required,min=10,max=500"`
	Student1    string `json:"student1" form:"student1" validate:"required,min=3,max=255"`
	Student2    string `json:"student2" form:"student2" validate:"omitempty,max=255"`
	DegreeLevel string `json:"degreeLevel" form:"degreeLevel" validate:"omitempty,oneof=undergraduate postgraduate masters"`
	Advisor     string `json:"advisor" form:"advisor" validate:"required,min=3,max=255"`
	CoAdvisor   string `json:"coAdvisor" form:"coAdvisor" validate:"omitempty,max=255"`
	Career      string `json:"career" form:"career" validate:"required,min=3,max=255"`
	Year        int    `json:"year" form:"year" validate:"required,year_window=2000:2"`
	Semester    string `json:"semester" form:"semester" validate:"required,oneof=1 2"`
	Abstract    string `json:"abstract" form:"abstract" validate:"required,min=50,max=3000"`
	Keywords    string `json:"keywords" form:"keywords" validate:"omitempty,max=500"`
}

// UpdateThesisProjectRequest lists the editable thesis fields.
type UpdateThesisProjectRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=10,max=500"`
	Student1    *string `json:"student1" validate:"omitempty,min=3,max=255"`
	Student2    *string `json:"student2" validate:"omitempty,max=255"`
	DegreeLevel *string `json:"degreeLevel" validate:"omitempty,oneof=undergraduate postgraduate masters"`
	Advisor     *string `json:"advisor" validate:"omitempty,min=3,max=255"`
	CoAdvisor   *string `json:"coAdvisor" validate:"omitempty,max=255"`
	Career      *string `json:"career" validate:"omitempty,min=3,max=255"`
	Year        *int    `json:"year" validate:"omitempty,year_window=2000:2"`
	Semester    *string `json:"semester" validate:"omitempty,oneof=1 2"`
	Abstract    *string `json:"abstract" validate:"omitempty,min=50,max=3000"`
	Keywords    *string `json:"keywords" validate:"omitempty,max=500"`
}

// ThesisProjectService manages thesis projects and their optional document.
type ThesisProjectService struct {
	repo      thesisProjectStore
	pipeline  *FilePipeline
	cache     *CacheService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewThesisProjectService constructs a ThesisProjectService. cache may be nil.
func NewThesisProjectService(repo thesisProjectStore, pipeline *FilePipeline, cache *CacheService, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *ThesisProjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator(EmailPolicy{})
	}
	return &ThesisProjectService{repo: repo, pipeline: pipeline, cache: cache, audit: audit, validator: validate, logger: logger}
}

// Create stores a thesis project, with its document when upload is set.
func (s *ThesisProjectService) Create(ctx context.Context, actor *models.JWTClaims, req CreateThesisProjectRequest, upload *StagedUpload) (*models.ThesisProject, error) {
	if err := policy.Authorize(actor, policy.ActionCreate, policy.Resource{Kind: models.KindThesisProject}); err != nil {
		s.pipeline.Discard(upload)
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		s.pipeline.Discard(upload)
		return nil, appErrors.FromValidation(err, "invalid thesis project payload")
	}

	var file *models.StoredFile
	if upload != nil {
		admitted, err := s.pipeline.Admit(models.KindThesisProject, actor.UserID, upload)
		if err != nil {
			return nil, err
		}
		file = admitted
	}
	degree := strings.TrimSpace(req.DegreeLevel)
	if degree == "" {
		degree = models.DegreeUndergraduate
	}
	project := &models.ThesisProject{
		Title:       strings.TrimSpace(req.Title),
		Student1:    strings.TrimSpace(req.Student1),
		Student2:    strings.TrimSpace(req.Student2),
		DegreeLevel: degree,
		Advisor:     strings.TrimSpace(req.Advisor),
		CoAdvisor:   strings.TrimSpace(req.CoAdvisor),
		Career:      strings.TrimSpace(req.Career),
		Year:        req.Year,
		Semester:    req.Semester,
		Abstract:    strings.TrimSpace(req.Abstract),
		Keywords:    strings.TrimSpace(req.Keywords),
		Attachment:  models.AttachmentOf(file),
		CreatedBy:   actor.UserID,
	}
	if err := s.pipeline.Persist(ctx, models.KindThesisProject, file, func(ctx context.Context) error {
		return s.repo.Create(ctx, project)
	}); err != nil {
		return nil, appErrors.Internal(err, "failed to save thesis project")
	}
	s.invalidate(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionUpload, models.KindThesisProject, project.ID,
		map[string]interface{}{"title": project.Title, "hasFile": file != nil})
	return project, nil
}

// Get returns a thesis project, served from cache when possible.
func (s *ThesisProjectService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ThesisProject, error) {
	if err := policy.Authorize(actor, policy.ActionRead, policy.Resource{Kind: models.KindThesisProject}); err != nil {
		return nil, err
	}
	key := "thesis:item:" + id
	var cached models.ThesisProject
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "thesis project")
	}
	s.store(ctx, key, project)
	return project, nil
}

// List returns thesis projects matching filter.
func (s *ThesisProjectService) List(ctx context.Context, actor *models.JWTClaims, filter models.ThesisProjectFilter) ([]models.ThesisProject, error) {
	if err := policy.Authorize(actor, policy.ActionList, policy.Resource{Kind: models.KindThesisProject}); err != nil {
		return nil, err
	}
	year := 0
	if filter.Year != nil {
		year = *filter.Year
	}
	key := fmt.Sprintf("thesis:list:%d:%s:%s:%s", year,
		strings.ToLower(strings.TrimSpace(filter.Career)), filter.Semester, filter.DegreeLevel)
	var cached []models.ThesisProject
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	projects, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list thesis projects")
	}
	s.store(ctx, key, projects)
	return projects, nil
}

// Update applies the allow-listed fields and, when upload is set, replaces the document.
func (s *ThesisProjectService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateThesisProjectRequest, upload *StagedUpload) (*models.ThesisProject, error) {
	project, err := s.load(ctx, actor, policy.ActionUpdate, id)
	if err != nil {
		s.pipeline.Discard(upload)
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		s.pipeline.Discard(upload)
		return nil, appErrors.FromValidation(err, "invalid thesis project payload")
	}
	applyThesisPatch(project, req)

	previous := project.File()
	var file *models.StoredFile
	if upload != nil {
		if file, err = s.pipeline.Admit(models.KindThesisProject, project.CreatedBy, upload); err != nil {
			return nil, err
		}
		project.Attachment = models.AttachmentOf(file)
	}
	if err := s.pipeline.Persist(ctx, models.KindThesisProject, file, func(ctx context.Context) error {
		return s.repo.Update(ctx, project)
	}); err != nil {
		return nil, notFoundOr(err, "thesis project")
	}
	if file != nil && previous != nil {
		s.pipeline.Remove(previous.Path)
	}
	s.invalidate(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionResourceEdit, models.KindThesisProject, project.ID, req)
	return project, nil
}

// Delete removes the document, if any, and then the row.
func (s *ThesisProjectService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	project, err := s.load(ctx, actor, policy.ActionDelete, id)
	if err != nil {
		return err
	}
	if file := project.File(); file != nil {
		if err := s.pipeline.Delete(file.Path); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "thesis project")
	}
	s.invalidate(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionResourceDrop, models.KindThesisProject, id, nil)
	return nil
}

// Download resolves the project's document for streaming.
func (s *ThesisProjectService) Download(ctx context.Context, actor *models.JWTClaims, id string) (*models.FileDownload, error) {
	project, err := s.load(ctx, actor, policy.ActionDownload, id)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Download(project.File())
}

func applyThesisPatch(project *models.ThesisProject, req UpdateThesisProjectRequest) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = trimmed(src)
		}
	}
	set(&project.Title, req.Title)
	set(&project.Student1, req.Student1)
	set(&project.Student2, req.Student2)
	set(&project.DegreeLevel, req.DegreeLevel)
	set(&project.Advisor, req.Advisor)
	set(&project.CoAdvisor, req.CoAdvisor)
	set(&project.Career, req.Career)
	set(&project.Semester, req.Semester)
	set(&project.Abstract, req.Abstract)
	set(&project.Keywords, req.Keywords)
	if req.Year != nil {
		project.Year = *req.Year
	}
}

func (s *ThesisProjectService) load(ctx context.Context, actor *models.JWTClaims, action policy.Action, id string) (*models.ThesisProject, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "thesis project")
	}
	if err := policy.Authorize(actor, action, policy.Resource{Kind: models.KindThesisProject, OwnerID: project.CreatedBy}); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ThesisProjectService) store(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("failed to cache thesis projects", zap.String("key", key), zap.Error(err))
	}
}

func (s *ThesisProjectService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, thesisCachePattern); err != nil {
		s.logger.Warn("failed to invalidate thesis cache", zap.Error(err))
	}
}
