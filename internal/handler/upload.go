package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/service"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

// multipartOverhead leaves room for form fields and boundaries around the file part.
const multipartOverhead = 1 << 20

// StagingStore receives raw uploads before they are validated.
type StagingStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Path(filename string) (string, error)
}

// Stager writes the multipart "file" part into the staging area.
type Stager struct {
	staging StagingStore
}

// NewStager constructs a Stager.
func NewStager(staging StagingStore) *Stager {
	return &Stager{staging: staging}
}

// Limit caps the request body before the multipart form is parsed.
func (s *Stager) Limit(c *gin.Context, maxFile int64) {
	if maxFile > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFile+multipartOverhead)
	}
}

// Stage saves the uploaded file, if any. A missing part or a non multipart
// request yields nil without error.
func (s *Stager) Stage(c *gin.Context) (*service.StagedUpload, error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, nil
	}
	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, formError(err)
	}
	src, err := header.Open()
	if err != nil {
		return nil, appErrors.Internal(err, "failed to open upload")
	}
	defer src.Close() //nolint:errcheck

	name, err := s.staging.SaveStream(uuid.NewString(), src)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to stage upload")
	}
	abs, err := s.staging.Path(name)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to resolve staged upload")
	}
	return &service.StagedUpload{
		Path:         abs,
		OriginalName: header.Filename,
		MimeType:     partType(header),
	}, nil
}

func partType(header *multipart.FileHeader) string {
	return strings.TrimSpace(header.Header.Get("Content-Type"))
}

// formError maps multipart parsing failures; an oversized body is a rejected payload.
func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		msg := fmt.Sprintf("request exceeds %d bytes limit", tooLarge.Limit)
		return appErrors.WithDetails(appErrors.ErrPayloadRejected, msg, appErrors.FieldError{Field: "file", Message: msg})
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid multipart payload")
}

// bindForm binds multipart metadata fields into req.
func bindForm(c *gin.Context, req interface{}) error {
	if err := c.ShouldBind(req); err != nil {
		return formError(err)
	}
	return nil
}

// decodePatch strictly decodes a JSON patch; fields outside the allow-list are rejected.
func decodePatch(c *gin.Context, req interface{}) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field ") {
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return appErrors.Field(field, "field cannot be updated")
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return nil
}

// sendFile streams a stored file as an attachment under its original name.
func sendFile(c *gin.Context, file *models.FileDownload) {
	c.Header("Content-Type", file.MimeType)
	c.Header("Cache-Control", "no-store")
	c.FileAttachment(file.Path, file.OriginalName)
}

func queryInt(c *gin.Context, key string) (*int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, appErrors.Field(key, "must be a number")
	}
	return &value, nil
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.Field(key, "must be true or false")
	}
	return &value, nil
}
