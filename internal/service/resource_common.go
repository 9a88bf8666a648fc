package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type researchRecordChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// notFoundOr maps sql.ErrNoRows to a NOT_FOUND naming the resource.
func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Internal(err, "failed to load "+what)
}

func recordAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, actor *models.JWTClaims, action string, kind models.ResourceKind, id string, values interface{}) {
	if audit == nil || actor == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	actorID := actor.UserID
	var resourceID *string
	if id != "" {
		resourceID = &id
	}
	ip, userAgent := models.ClientFrom(ctx)
	if err := audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   string(kind),
		ResourceID: resourceID,
		NewValues:  payload,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.String("resource", string(kind)), zap.Error(err))
	}
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func folderOrDefault(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return models.DefaultFolder
	}
	return folder
}

// optionalID turns a blank reference into nil.
func optionalID(value *string) *string {
	v := trimmed(value)
	if v == "" {
		return nil
	}
	return &v
}
