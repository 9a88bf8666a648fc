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

type personalArchiveService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req service.CreatePersonalArchiveRequest, upload *service.StagedUpload) (*models.PersonalArchive, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.PersonalArchive, error)
	List(ctx context.Context, actor *models.JWTClaims, filter models.PersonalArchiveFilter) ([]models.PersonalArchive, error)
	Folders(ctx context.Context, actor *models.JWTClaims) ([]models.FolderSummary, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req service.UpdatePersonalArchiveRequest) (*models.PersonalArchive, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
	Download(ctx context.Context, actor *models.JWTClaims, id string) (*models.FileDownload, error)
}

// PersonalArchiveHandler manages personal archive endpoints.
type PersonalArchiveHandler struct {
	service personalArchiveService
	stager  *Stager
	maxSize int64
}

// NewPersonalArchiveHandler constructs the handler.
func NewPersonalArchiveHandler(svc personalArchiveService, stager *Stager, maxSize int64) *PersonalArchiveHandler {
	return &PersonalArchiveHandler{service: svc, stager: stager, maxSize: maxSize}
}

// Create godoc
// @Summary Upload personal archive
// @Tags Personal Archives
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document"
// @Param folder formData string false "Folder"
// @Param tags formData string false "Comma separated tags"
// @Param favorite formData bool false "Favorite"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /personal-archives [post]
func (h *PersonalArchiveHandler) Create(c *gin.Context) {
	h.stager.Limit(c, h.maxSize)
	var req service.CreatePersonalArchiveRequest
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
// @Summary List personal archives
// @Tags Personal Archives
// @Produce json
// @Param folder query string false "Folder"
// @Param favorite query bool false "Favorites only"
// @Param tags query string false "Tag substring"
// @Success 200 {object} response.Envelope
// @Router /personal-archives [get]
func (h *PersonalArchiveHandler) List(c *gin.Context) {
	favorite, err := queryBool(c, "favorite")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.PersonalArchiveFilter{
		OwnerID:  strings.TrimSpace(c.Query("ownerId")),
		Folder:   strings.TrimSpace(c.Query("folder")),
		Favorite: favorite,
		Tags:     c.Query("tags"),
	}
	items, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Folders godoc
// @Summary Folder counts of the caller
// @Tags Personal Archives
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /personal-archives/folders [get]
func (h *PersonalArchiveHandler) Folders(c *gin.Context) {
	folders, err := h.service.Folders(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, folders, nil)
}

// Get godoc
// @Summary Get personal archive
// @Tags Personal Archives
// @Produce json
// @Param id path string true "Archive ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /personal-archives/{id} [get]
func (h *PersonalArchiveHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Update personal archive metadata
// @Tags Personal Archives
// @Accept json
// @Produce json
// @Param id path string true "Archive ID"
// @Param payload body service.UpdatePersonalArchiveRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /personal-archives/{id} [patch]
func (h *PersonalArchiveHandler) Update(c *gin.Context) {
	var req service.UpdatePersonalArchiveRequest
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
// @Summary Delete personal archive
// @Tags Personal Archives
// @Param id path string true "Archive ID"
// @Success 204 {object} response.Envelope
// @Router /personal-archives/{id} [delete]
func (h *PersonalArchiveHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Download personal archive file
// @Tags Personal Archives
// @Produce octet-stream
// @Param id path string true "Archive ID"
// @Success 200 {file} binary
// @Router /personal-archives/{id}/download [get]
func (h *PersonalArchiveHandler) Download(c *gin.Context) {
	file, err := h.service.Download(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}
