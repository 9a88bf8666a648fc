package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/service"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
	"github.com/noah-isme/research-portal-api/pkg/response"
)

type thesisProjectService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req service.CreateThesisProjectRequest, upload *service.StagedUpload) (*models.ThesisProject, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ThesisProject, error)
	List(ctx context.Context, actor *models.JWTClaims, filter models.ThesisProjectFilter) ([]models.ThesisProject, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req service.UpdateThesisProjectRequest, upload *service.StagedUpload) (*models.ThesisProject, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
	Download(ctx context.Context, actor *models.JWTClaims, id string) (*models.FileDownload, error)
}

// ThesisProjectHandler manages thesis project endpoints.
type ThesisProjectHandler struct {
	service thesisProjectService
	stager  *Stager
	maxSize int64
}

// NewThesisProjectHandler constructs the handler.
func NewThesisProjectHandler(svc thesisProjectService, stager *Stager, maxSize int64) *ThesisProjectHandler {
	return &ThesisProjectHandler{service: svc, stager: stager, maxSize: maxSize}
}

// Create godoc
// @Summary Create thesis project
// @Description Accepts JSON, or multipart with an optional document in "file".
// @Tags Thesis Projects
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param file formData file false "Document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /thesis-projects [post]
func (h *ThesisProjectHandler) Create(c *gin.Context) {
	h.stager.Limit(c, h.maxSize)
	var req service.CreateThesisProjectRequest
	if err := bindForm(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	upload, err := h.stager.Stage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	project, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, project)
}

// List godoc
// @Summary List thesis projects
// @Tags Thesis Projects
// @Produce json
// @Param year query int false "Year"
// @Param career query string false "Career"
// @Param semester query string false "1 or 2"
// @Param degreeLevel query string false "undergraduate, postgraduate or masters"
// @Success 200 {object} response.Envelope
// @Router /thesis-projects [get]
func (h *ThesisProjectHandler) List(c *gin.Context) {
	year, err := queryInt(c, "year")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.ThesisProjectFilter{
		Year:        year,
		Career:      strings.TrimSpace(c.Query("career")),
		Semester:    strings.TrimSpace(c.Query("semester")),
		DegreeLevel: strings.ToLower(strings.TrimSpace(c.Query("degreeLevel"))),
	}
	projects, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, projects, nil)
}

// Get godoc
// @Summary Get thesis project
// @Tags Thesis Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /thesis-projects/{id} [get]
func (h *ThesisProjectHandler) Get(c *gin.Context) {
	project, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}

// Update godoc
// @Summary Update thesis project
// @Tags Thesis Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body service.UpdateThesisProjectRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /thesis-projects/{id} [patch]
func (h *ThesisProjectHandler) Update(c *gin.Context) {
	var req service.UpdateThesisProjectRequest
	if err := decodePatch(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	project, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}

// ReplaceFile godoc
// @Summary Attach or replace the thesis document
// @Tags Thesis Projects
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Project ID"
// @Param file formData file true "Document"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /thesis-projects/{id}/file [put]
func (h *ThesisProjectHandler) ReplaceFile(c *gin.Context) {
	h.stager.Limit(c, h.maxSize)
	upload, err := h.stager.Stage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if upload == nil {
		response.Error(c, appErrors.Field("file", "is required"))
		return
	}
	project, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), service.UpdateThesisProjectRequest{}, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}

// Delete godoc
// @Summary Delete thesis project
// @Tags Thesis Projects
// @Param id path string true "Project ID"
// @Success 204 {object} response.Envelope
// @Router /thesis-projects/{id} [delete]
func (h *ThesisProjectHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Download thesis document
// @Tags Thesis Projects
// @Produce octet-stream
// @Param id path string true "Project ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /thesis-projects/{id}/download [get]
func (h *ThesisProjectHandler) Download(c *gin.Context) {
	file, err := h.service.Download(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}
