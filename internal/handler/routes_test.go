package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/pkg/response"
	"github.com/noah-isme/research-portal-api/pkg/storage"
)

func serve(f *routeFixture, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestRoutesRequireBearerToken(t *testing.T) {
	f := newRouteFixture(nil)

	w := serve(f, http.MethodGet, "/api/v1/shared-archives", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(f, http.MethodGet, "/api/v1/shared-archives", "forged", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutesCoarseGate(t *testing.T) {
	f := newRouteFixture(nil)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"student cannot list users", http.MethodGet, "/api/v1/users", "student", http.StatusForbidden},
		{"admin lists users", http.MethodGet, "/api/v1/users", "admin", http.StatusOK},
		{"student reads own identity", http.MethodGet, "/api/v1/users/s-1", "student", http.StatusOK},
		{"student cannot export roster", http.MethodGet, "/api/v1/users/export", "student", http.StatusForbidden},
		{"student cannot create research", http.MethodPost, "/api/v1/research-records", "student", http.StatusForbidden},
		{"student cannot open personal archives", http.MethodGet, "/api/v1/personal-archives", "student", http.StatusForbidden},
		{"student lists shared archives", http.MethodGet, "/api/v1/shared-archives", "student", http.StatusOK},
		{"student lists algorithms", http.MethodGet, "/api/v1/algorithms", "student", http.StatusOK},
		{"admin cannot reconcile", http.MethodPost, "/api/v1/admin/storage/reconcile", "admin", http.StatusForbidden},
		{"superadmin reconciles", http.MethodPost, "/api/v1/admin/storage/reconcile", "superadmin", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(f, tc.method, tc.path, tc.token, nil, "")
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestAuthRegisterReturnsCreated(t *testing.T) {
	f := newRouteFixture(nil)
	body := bytes.NewBufferString(`{"name":"Ana Torres","email":"ana.torres@students.example.edu","legalId":"1234567890"}`)

	w := serve(f, http.MethodPost, "/api/v1/auth/register", "", body, "application/json")

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "ana.torres@students.example.edu")
	assert.NotContains(t, w.Body.String(), "12345", "the access code never reaches the response")
	assert.Equal(t, "Ana Torres", f.registrar.got.Name)
	assert.NotEmpty(t, f.registrar.got.IP)
}

func TestAuthLoginRejectsMalformedBody(t *testing.T) {
	f := newRouteFixture(nil)

	w := serve(f, http.MethodPost, "/api/v1/auth/login", "", bytes.NewBufferString(`{`), "application/json")

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestAuthMeEchoesTokenIdentity(t *testing.T) {
	f := newRouteFixture(nil)

	w := serve(f, http.MethodGet, "/api/v1/auth/me", "faculty", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"FACULTY"`)
}

func TestUserUpdateRejectsFieldsOutsideAllowList(t *testing.T) {
	f := newRouteFixture(nil)
	body := bytes.NewBufferString(`{"name":"New Name","createdAt":"2020-01-01T00:00:00Z"}`)

	w := serve(f, http.MethodPatch, "/api/v1/users/s-1", "student", body, "application/json")

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	require.Len(t, env.Error.Details, 1)
	assert.Equal(t, "createdAt", env.Error.Details[0].Field)
	assert.Nil(t, f.users.updated)
}

func TestUserUpdatePassesPatch(t *testing.T) {
	f := newRouteFixture(nil)

	w := serve(f, http.MethodPatch, "/api/v1/users/s-1", "student", bytes.NewBufferString(`{"name":"New Name"}`), "application/json")

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.users.updated)
	require.NotNil(t, f.users.updated.Name)
	assert.Equal(t, "New Name", *f.users.updated.Name)
}

func TestUserExportSetsAttachmentHeaders(t *testing.T) {
	f := newRouteFixture(nil)

	w := serve(f, http.MethodGet, "/api/v1/users/export?format=csv", "admin", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "users.csv")
	assert.Equal(t, "id\n", w.Body.String())
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestSharedArchiveCreateStagesUpload(t *testing.T) {
	staging, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := newRouteFixture(NewStager(staging))

	body, contentType := multipartBody(t, map[string]string{"folder": "Reports", "isPublic": "true"}, "syllabus.pdf", []byte("%PDF-1.4 content"))
	w := serve(f, http.MethodPost, "/api/v1/shared-archives", "student", body, contentType)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, f.shared.upload)
	assert.Equal(t, "syllabus.pdf", f.shared.upload.OriginalName)
	assert.Equal(t, "Reports", f.shared.req.Folder)
	assert.True(t, f.shared.req.IsPublic)

	staged, err := os.ReadFile(f.shared.upload.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 content", string(staged))
}

func TestSharedArchiveCreateWithoutFile(t *testing.T) {
	staging, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := newRouteFixture(NewStager(staging))

	body, contentType := multipartBody(t, map[string]string{"folder": "Reports"}, "", nil)
	w := serve(f, http.MethodPost, "/api/v1/shared-archives", "student", body, contentType)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, f.shared.upload)
}

func TestSharedArchiveDownloadUsesOriginalName(t *testing.T) {
	f := newRouteFixture(nil)
	path := filepath.Join(t.TempDir(), "stored-name")
	require.NoError(t, os.WriteFile(path, []byte("report body"), 0o600))
	f.shared.download = &models.FileDownload{Path: path, OriginalName: "Final Report.pdf", MimeType: "application/pdf"}

	w := serve(f, http.MethodGet, "/api/v1/shared-archives/a-1/download", "student", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Final Report.pdf")
	assert.Equal(t, "report body", w.Body.String())
}

func TestSharedArchiveDownloadMissingFile(t *testing.T) {
	f := newRouteFixture(nil)

	w := serve(f, http.MethodGet, "/api/v1/shared-archives/a-1/download", "student", nil, "")

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlgorithmRunRelaysBody(t *testing.T) {
	f := newRouteFixture(nil)

	w := serve(f, http.MethodPost, "/api/v1/algorithms/kmeans", "student", bytes.NewBufferString(`{"k":3}`), "application/json")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kmeans", f.algorithms.kind)
	assert.JSONEq(t, `{"k":3}`, string(f.algorithms.input))
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestAlgorithmRunRejectsOversizedInput(t *testing.T) {
	f := newRouteFixture(nil)
	big := `{"data":"` + strings.Repeat("x", maxAlgorithmInput) + `"}`

	w := serve(f, http.MethodPost, "/api/v1/algorithms/sort", "student", bytes.NewBufferString(big), "application/json")

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.algorithms.kind)
}

func TestReconcileParsesDryRun(t *testing.T) {
	f := newRouteFixture(nil)

	w := serve(f, http.MethodPost, "/api/v1/admin/storage/reconcile?dryRun=true", "superadmin", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.reconciler.dryRun)

	w = serve(f, http.MethodPost, "/api/v1/admin/storage/reconcile?dryRun=maybe", "superadmin", nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, f.reconciler.calls)
}
