package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/service"
	"github.com/noah-isme/research-portal-api/pkg/response"
)

type sharedArchiveService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req service.CreateSharedArchiveRequest, upload *service.StagedUpload) (*models.SharedArchive, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SharedArchive, error)
	List(ctx context.Context, actor *models.JWTClaims, filter models.SharedArchiveFilter) ([]models.SharedArchive, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req service.UpdateSharedArchiveRequest) (*models.SharedArchive, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
	Download(ctx context.Context, actor *models.JWTClaims, id string) (*models.FileDownload, error)
}

// SharedArchiveHandler manages shared archive endpoints.
type SharedArchiveHandler struct {
	service sharedArchiveService
	stager  *Stager
	maxSize int64
}

// NewSharedArchiveHandler constructs the handler. maxSize caps the uploaded file.
func NewSharedArchiveHandler(svc sharedArchiveService, stager *Stager, maxSize int64) *SharedArchiveHandler {
	return &SharedArchiveHandler{service: svc, stager: stager, maxSize: maxSize}
}

// Create godoc
// @Summary Upload shared archive
// @Tags Shared Archives
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document"
// @Param folder formData string false "Folder"
// @Param category formData string false "personal or research"
// @Param isPublic formData bool false "Visible to every user"
// @Param description formData string false "Description"
// @Param researchRecordId formData string false "Related research record"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /shared-archives [post]
func (h *SharedArchiveHandler) Create(c *gin.Context) {
	h.stager.Limit(c, h.maxSize)
	var req service.CreateSharedArchiveRequest
	if err := bindForm(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	upload, err := h.stager.Stage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// List godoc
// @Summary List shared archives
// @Tags Shared Archives
// @Produce json
// @Param category query string false "Category"
// @Param folder query string false "Folder"
// @Param researchRecordId query string false "Related research record"
// @Success 200 {object} response.Envelope
// @Router /shared-archives [get]
func (h *SharedArchiveHandler) List(c *gin.Context) {
	filter := models.SharedArchiveFilter{
		Category:         strings.TrimSpace(c.Query("category")),
		Folder:           strings.TrimSpace(c.Query("folder")),
		ResearchRecordID: strings.TrimSpace(c.Query("researchRecordId")),
	}
	items, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get shared archive
// @Tags Shared Archives
// @Produce json
// @Param id path string true "Archive ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /shared-archives/{id} [get]
func (h *SharedArchiveHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Update shared archive metadata
// @Tags Shared Archives
// @Accept json
// @Produce json
// @Param id path string true "Archive ID"
// @Param payload body service.UpdateSharedArchiveRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /shared-archives/{id} [patch]
func (h *SharedArchiveHandler) Update(c *gin.Context) {
	var req service.UpdateSharedArchiveRequest
	if err := decodePatch(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	item, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete shared archive
// @Tags Shared Archives
// @Param id path string true "Archive ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /shared-archives/{id} [delete]
func (h *SharedArchiveHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Download shared archive file
// @Tags Shared Archives
// @Produce octet-stream
// @Param id path string true "Archive ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /shared-archives/{id}/download [get]
func (h *SharedArchiveHandler) Download(c *gin.Context) {
	file, err := h.service.Download(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}
