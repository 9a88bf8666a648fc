package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/service"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
	"github.com/noah-isme/research-portal-api/pkg/response"
)

// maxAlgorithmInput bounds the JSON body relayed to a script argument.
const maxAlgorithmInput = 1 << 20

type algorithmService interface {
	Run(ctx context.Context, actor *models.JWTClaims, kind string, input json.RawMessage) (json.RawMessage, error)
	Kinds() []string
}

type storageReconciler interface {
	Reconcile(ctx context.Context, actor *models.JWTClaims, dryRun bool) (*service.ReconcileReport, error)
}

// AlgorithmHandler exposes the computation endpoints.
type AlgorithmHandler struct {
	service algorithmService
}

// NewAlgorithmHandler constructs the handler.
func NewAlgorithmHandler(svc algorithmService) *AlgorithmHandler {
	return &AlgorithmHandler{service: svc}
}

// Kinds godoc
// @Summary List algorithms
// @Tags Algorithms
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /algorithms [get]
func (h *AlgorithmHandler) Kinds(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Kinds(), nil)
}

// Run godoc
// @Summary Run an algorithm
// @Description The body is a JSON object passed to the algorithm unchanged.
// @Tags Algorithms
// @Accept json
// @Produce json
// @Param kind path string true "Algorithm kind"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /algorithms/{kind} [post]
func (h *AlgorithmHandler) Run(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAlgorithmInput+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	if len(body) > maxAlgorithmInput {
		response.Error(c, appErrors.Field("input", "exceeds 1MB"))
		return
	}
	out, err := h.service.Run(c.Request.Context(), claimsFromContext(c), c.Param("kind"), json.RawMessage(body))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// AdminHandler exposes maintenance operations.
type AdminHandler struct {
	reconciler storageReconciler
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(reconciler storageReconciler) *AdminHandler {
	return &AdminHandler{reconciler: reconciler}
}

// Reconcile godoc
// @Summary Reconcile stored files
// @Description Removes files no record references. dryRun only reports them.
// @Tags Admin
// @Produce json
// @Param dryRun query bool false "Report without deleting"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/storage/reconcile [post]
func (h *AdminHandler) Reconcile(c *gin.Context) {
	dryRun := false
	if raw := c.Query("dryRun"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Field("dryRun", "must be true or false"))
			return
		}
		dryRun = parsed
	}
	report, err := h.reconciler.Reconcile(c.Request.Context(), claimsFromContext(c), dryRun)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
