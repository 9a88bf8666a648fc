package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/pkg/config"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

const maxStoredBaseLength = 100

type fileStore interface {
	Relocate(src, filename string) (string, error)
	Exists(filename string) (bool, error)
	Delete(filename string) error
	Path(filename string) (string, error)
}

// StagedUpload is a file the transport already wrote to the staging area.
type StagedUpload struct {
	Path         string
	OriginalName string
	MimeType     string
}

// uploadRule caps one resource kind.
type uploadRule struct {
	maxSize int64
	allowed map[string]struct{}
}

// FilePipeline moves staged uploads into permanent storage:
// received, validated, renamed, relocated, persisted.
type FilePipeline struct {
	storage fileStore
	rules   map[models.ResourceKind]uploadRule
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewFilePipeline builds a pipeline from the per kind storage limits.
func NewFilePipeline(storage fileStore, cfg config.StorageConfig, metrics *MetricsService, logger *zap.Logger) *FilePipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilePipeline{
		storage: storage,
		rules: map[models.ResourceKind]uploadRule{
			models.KindSharedArchive:   newUploadRule(cfg.Shared),
			models.KindPersonalArchive: newUploadRule(cfg.Personal),
			models.KindResearchRecord:  newUploadRule(cfg.Research),
			models.KindThesisProject:   newUploadRule(cfg.Thesis),
		},
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func newUploadRule(limits config.UploadLimits) uploadRule {
	allowed := make(map[string]struct{}, len(limits.AllowedMIMEs))
	for _, mt := range limits.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	maxSize := limits.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	return uploadRule{maxSize: maxSize, allowed: allowed}
}

// MaxSize is the largest accepted upload for kind.
func (p *FilePipeline) MaxSize(kind models.ResourceKind) int64 {
	return p.rules[kind].maxSize
}

// Admit validates the staged upload, renames it and relocates it under
// {kind}/{owner}/. A rejected upload is removed from staging.
func (p *FilePipeline) Admit(kind models.ResourceKind, ownerID string, upload *StagedUpload) (*models.StoredFile, error) {
	if upload == nil {
		return nil, appErrors.Field("file", "is required")
	}
	rule, ok := p.rules[kind]
	if !ok {
		p.Discard(upload)
		return nil, appErrors.Internal(fmt.Errorf("no upload rule for %s", kind), "unsupported resource kind")
	}

	info, err := os.Stat(upload.Path)
	if err != nil {
		return nil, appErrors.Internal(err, "staged upload missing")
	}
	if info.Size() == 0 {
		return nil, p.reject(kind, upload, "file is empty")
	}
	if info.Size() > rule.maxSize {
		return nil, p.reject(kind, upload, fmt.Sprintf("file exceeds %d bytes limit", rule.maxSize))
	}
	mimeType := p.detectMime(upload)
	if _, allowed := rule.allowed[mimeType]; !allowed {
		return nil, p.reject(kind, upload, fmt.Sprintf("file type %s is not allowed", mimeType))
	}

	storedName := p.storedName(upload.OriginalName, mimeType)
	rel := path.Join(kind.Dir(), ownerID, storedName)
	if _, err := p.storage.Relocate(upload.Path, rel); err != nil {
		p.Discard(upload)
		p.metrics.RecordUpload(string(kind), "failed", 0)
		return nil, appErrors.Internal(err, "failed to store file")
	}

	return &models.StoredFile{
		StoredName:   storedName,
		OriginalName: originalBase(upload.OriginalName),
		Path:         rel,
		Size:         info.Size(),
		MimeType:     mimeType,
	}, nil
}

// Persist runs persist for a relocated file. When it fails the file is
// removed so no unreferenced upload stays behind.
func (p *FilePipeline) Persist(ctx context.Context, kind models.ResourceKind, file *models.StoredFile, persist func(ctx context.Context) error) error {
	if err := persist(ctx); err != nil {
		if file != nil {
			if rmErr := p.storage.Delete(file.Path); rmErr != nil {
				p.logger.Error("failed to remove file after persist failure", zap.String("path", file.Path), zap.Error(rmErr))
			}
		}
		p.metrics.RecordUpload(string(kind), "failed", 0)
		return err
	}
	if file != nil {
		p.metrics.RecordUpload(string(kind), "persisted", file.Size)
	}
	return nil
}

// Discard removes a staged upload that will not be admitted.
func (p *FilePipeline) Discard(upload *StagedUpload) {
	if upload == nil || upload.Path == "" {
		return
	}
	if err := os.Remove(upload.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("failed to discard staged upload", zap.String("path", upload.Path), zap.Error(err))
	}
}

// Delete removes a stored file ahead of its row. Missing files are not an error;
// any other failure is returned so the row is kept.
func (p *FilePipeline) Delete(rel string) error {
	if rel == "" {
		return nil
	}
	if err := p.storage.Delete(rel); err != nil {
		p.logger.Error("failed to delete stored file", zap.String("path", rel), zap.Error(err))
		return appErrors.Internal(err, "failed to delete stored file")
	}
	return nil
}

// Remove deletes a superseded file best effort. Leftovers are collected by the sweep.
func (p *FilePipeline) Remove(rel string) {
	if rel == "" {
		return
	}
	if err := p.storage.Delete(rel); err != nil {
		p.logger.Error("failed to remove stored file", zap.String("path", rel), zap.Error(err))
	}
}

// Download resolves a stored file for streaming.
func (p *FilePipeline) Download(file *models.StoredFile) (*models.FileDownload, error) {
	if file == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "resource has no file")
	}
	exists, err := p.storage.Exists(file.Path)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to stat stored file")
	}
	if !exists {
		p.logger.Warn("stored file missing", zap.String("path", file.Path))
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	abs, err := p.storage.Path(file.Path)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to resolve stored file")
	}
	return &models.FileDownload{Path: abs, OriginalName: file.OriginalName, MimeType: file.MimeType}, nil
}

func (p *FilePipeline) reject(kind models.ResourceKind, upload *StagedUpload, message string) error {
	p.Discard(upload)
	p.metrics.RecordUpload(string(kind), "rejected", 0)
	return appErrors.WithDetails(appErrors.ErrPayloadRejected, message, appErrors.FieldError{Field: "file", Message: message})
}

// detectMime trusts the declared type unless it is missing or generic, then sniffs.
func (p *FilePipeline) detectMime(upload *StagedUpload) string {
	declared := strings.ToLower(strings.TrimSpace(strings.SplitN(upload.MimeType, ";", 2)[0]))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	detected, err := mimetype.DetectFile(upload.Path)
	if err != nil {
		p.logger.Warn("mime detection failed", zap.String("path", upload.Path), zap.Error(err))
		return "application/octet-stream"
	}
	return strings.ToLower(strings.SplitN(detected.String(), ";", 2)[0])
}

// storedName is {unixNano}-{8 hex}-{sanitized base}{ext}.
func (p *FilePipeline) storedName(original, mimeType string) string {
	original = originalBase(original)
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = mimeExtension(mimeType)
	}
	base := sanitize(strings.TrimSuffix(original, filepath.Ext(original)))
	if len(base) > maxStoredBaseLength {
		base = base[:maxStoredBaseLength]
	}
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("%d-%s-%s%s", p.now().UnixNano(), randomSuffix(), base, ext)
}

// originalBase strips any client supplied directories.
func originalBase(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(strings.TrimSpace(name))
	if base == "." || base == "/" {
		return "file"
	}
	return base
}

func sanitize(raw string) string {
	raw = strings.ToLower(raw)
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func mimeExtension(mime string) string {
	switch strings.ToLower(mime) {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/msword":
		return ".doc"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "application/zip":
		return ".zip"
	case "text/plain":
		return ".txt"
	default:
		return ""
	}
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(buf)
}
