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

type researchRecordService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req service.CreateResearchRecordRequest, upload *service.StagedUpload) (*models.ResearchRecord, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ResearchRecord, error)
	List(ctx context.Context, actor *models.JWTClaims, filter models.ResearchRecordFilter) ([]models.ResearchRecord, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req service.UpdateResearchRecordRequest, upload *service.StagedUpload) (*models.ResearchRecord, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
	Download(ctx context.Context, actor *models.JWTClaims, id string) (*models.FileDownload, error)
}

// ResearchRecordHandler manages research record endpoints.
type ResearchRecordHandler struct {
	service researchRecordService
	stager  *Stager
	maxSize int64
}

// NewResearchRecordHandler constructs the handler.
func NewResearchRecordHandler(svc researchRecordService, stager *Stager, maxSize int64) *ResearchRecordHandler {
	return &ResearchRecordHandler{service: svc, stager: stager, maxSize: maxSize}
}

// Create godoc
// @Summary Create research record
// @Description Accepts JSON, or multipart with an optional document in "file".
// @Tags Research Records
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param file formData file false "Document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /research-records [post]
func (h *ResearchRecordHandler) Create(c *gin.Context) {
	h.stager.Limit(c, h.maxSize)
	var req service.CreateResearchRecordRequest
	if err := bindForm(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	upload, err := h.stager.Stage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	record, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// List godoc
// @Summary List research records
// @Tags Research Records
// @Produce json
// @Param year query int false "Year"
// @Param author query string false "Author"
// @Success 200 {object} response.Envelope
// @Router /research-records [get]
func (h *ResearchRecordHandler) List(c *gin.Context) {
	year, err := queryInt(c, "year")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.ResearchRecordFilter{Year: year, Author: strings.TrimSpace(c.Query("author"))}
	records, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Get godoc
// @Summary Get research record
// @Tags Research Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /research-records/{id} [get]
func (h *ResearchRecordHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Update godoc
// @Summary Update research record
// @Tags Research Records
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.UpdateResearchRecordRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /research-records/{id} [patch]
func (h *ResearchRecordHandler) Update(c *gin.Context) {
	var req service.UpdateResearchRecordRequest
	if err := decodePatch(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	record, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ReplaceFile godoc
// @Summary Attach or replace the research document
// @Tags Research Records
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Record ID"
// @Param file formData file true "Document"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /research-records/{id}/file [put]
func (h *ResearchRecordHandler) ReplaceFile(c *gin.Context) {
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
	record, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), service.UpdateResearchRecordRequest{}, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete research record
// @Tags Research Records
// @Param id path string true "Record ID"
// @Success 204 {object} response.Envelope
// @Router /research-records/{id} [delete]
func (h *ResearchRecordHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Download research document
// @Tags Research Records
// @Produce octet-stream
// @Param id path string true "Record ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /research-records/{id}/download [get]
func (h *ResearchRecordHandler) Download(c *gin.Context) {
	file, err := h.service.Download(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}
