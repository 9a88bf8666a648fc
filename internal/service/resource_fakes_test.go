package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/pkg/config"
	"github.com/noah-isme/research-portal-api/pkg/storage"
)

// memoryRows is a keyed table with sequential ids, standing in for a repository.
type memoryRows[T any] struct {
	mu        sync.Mutex
	seq       int
	rows      map[string]T
	id        func(*T) *string
	failWrite error
}

func newMemoryRows[T any](id func(*T) *string) *memoryRows[T] {
	return &memoryRows[T]{rows: make(map[string]T), id: id}
}

func (m *memoryRows[T]) create(item *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	m.seq++
	*m.id(item) = fmt.Sprintf("%d", m.seq)
	m.rows[*m.id(item)] = *item
	return nil
}

func (m *memoryRows[T]) get(id string) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memoryRows[T]) update(item *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	id := *m.id(item)
	if _, ok := m.rows[id]; !ok {
		return sql.ErrNoRows
	}
	m.rows[id] = *item
	return nil
}

func (m *memoryRows[T]) delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func (m *memoryRows[T]) all(keep func(T) bool) []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if keep == nil || keep(m.rows[id]) {
			out = append(out, m.rows[id])
		}
	}
	return out
}

type memorySharedArchives struct{ *memoryRows[models.SharedArchive] }

func newMemorySharedArchives() *memorySharedArchives {
	return &memorySharedArchives{newMemoryRows(func(a *models.SharedArchive) *string { return &a.ID })}
}

func (m *memorySharedArchives) Create(ctx context.Context, item *models.SharedArchive) error {
	return m.create(item)
}
func (m *memorySharedArchives) GetByID(ctx context.Context, id string) (*models.SharedArchive, error) {
	return m.get(id)
}
func (m *memorySharedArchives) Update(ctx context.Context, item *models.SharedArchive) error {
	return m.update(item)
}
func (m *memorySharedArchives) Delete(ctx context.Context, id string) error { return m.delete(id) }

func (m *memorySharedArchives) List(ctx context.Context, filter models.SharedArchiveFilter) ([]models.SharedArchive, error) {
	return m.all(func(a models.SharedArchive) bool {
		if filter.VisibleTo != "" && !a.IsPublic && a.OwnerID != filter.VisibleTo {
			return false
		}
		if filter.Category != "" && a.Category != filter.Category {
			return false
		}
		return filter.Folder == "" || a.Folder == filter.Folder
	}), nil
}

func (m *memorySharedArchives) ListPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0)
	for _, a := range m.all(nil) {
		paths = append(paths, a.Path)
	}
	return paths, nil
}

type memoryPersonalArchives struct{ *memoryRows[models.PersonalArchive] }

func newMemoryPersonalArchives() *memoryPersonalArchives {
	return &memoryPersonalArchives{newMemoryRows(func(a *models.PersonalArchive) *string { return &a.ID })}
}

func (m *memoryPersonalArchives) Create(ctx context.Context, item *models.PersonalArchive) error {
	return m.create(item)
}
func (m *memoryPersonalArchives) GetByID(ctx context.Context, id string) (*models.PersonalArchive, error) {
	return m.get(id)
}
func (m *memoryPersonalArchives) Update(ctx context.Context, item *models.PersonalArchive) error {
	return m.update(item)
}
func (m *memoryPersonalArchives) Delete(ctx context.Context, id string) error { return m.delete(id) }

func (m *memoryPersonalArchives) List(ctx context.Context, filter models.PersonalArchiveFilter) ([]models.PersonalArchive, error) {
	return m.all(func(a models.PersonalArchive) bool {
		if filter.OwnerID != "" && a.OwnerID != filter.OwnerID {
			return false
		}
		if filter.Folder != "" && a.Folder != filter.Folder {
			return false
		}
		return filter.Favorite == nil || a.Favorite == *filter.Favorite
	}), nil
}

func (m *memoryPersonalArchives) Folders(ctx context.Context, ownerID string) ([]models.FolderSummary, error) {
	counts := map[string]int{}
	for _, a := range m.all(func(a models.PersonalArchive) bool { return a.OwnerID == ownerID }) {
		counts[a.Folder]++
	}
	out := make([]models.FolderSummary, 0, len(counts))
	for folder, count := range counts {
		out = append(out, models.FolderSummary{Folder: folder, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folder < out[j].Folder })
	return out, nil
}

func (m *memoryPersonalArchives) ListPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0)
	for _, a := range m.all(nil) {
		paths = append(paths, a.Path)
	}
	return paths, nil
}

type memoryResearchRecords struct{ *memoryRows[models.ResearchRecord] }

func newMemoryResearchRecords() *memoryResearchRecords {
	return &memoryResearchRecords{newMemoryRows(func(r *models.ResearchRecord) *string { return &r.ID })}
}

func (m *memoryResearchRecords) Create(ctx context.Context, record *models.ResearchRecord) error {
	return m.create(record)
}
func (m *memoryResearchRecords) GetByID(ctx context.Context, id string) (*models.ResearchRecord, error) {
	return m.get(id)
}
func (m *memoryResearchRecords) Update(ctx context.Context, record *models.ResearchRecord) error {
	return m.update(record)
}
func (m *memoryResearchRecords) Delete(ctx context.Context, id string) error { return m.delete(id) }

func (m *memoryResearchRecords) Exists(ctx context.Context, id string) (bool, error) {
	_, err := m.get(id)
	return err == nil, nil
}

func (m *memoryResearchRecords) List(ctx context.Context, filter models.ResearchRecordFilter) ([]models.ResearchRecord, error) {
	return m.all(func(r models.ResearchRecord) bool {
		if filter.Year != nil && r.Year != *filter.Year {
			return false
		}
		return filter.Author == "" || strings.EqualFold(r.Author, filter.Author)
	}), nil
}

func (m *memoryResearchRecords) ListPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0)
	for _, r := range m.all(nil) {
		if r.FilePath != nil {
			paths = append(paths, *r.FilePath)
		}
	}
	return paths, nil
}

type memoryThesisProjects struct{ *memoryRows[models.ThesisProject] }

func newMemoryThesisProjects() *memoryThesisProjects {
	return &memoryThesisProjects{newMemoryRows(func(p *models.ThesisProject) *string { return &p.ID })}
}

func (m *memoryThesisProjects) Create(ctx context.Context, project *models.ThesisProject) error {
	return m.create(project)
}
func (m *memoryThesisProjects) GetByID(ctx context.Context, id string) (*models.ThesisProject, error) {
	return m.get(id)
}
func (m *memoryThesisProjects) Update(ctx context.Context, project *models.ThesisProject) error {
	return m.update(project)
}
func (m *memoryThesisProjects) Delete(ctx context.Context, id string) error { return m.delete(id) }

func (m *memoryThesisProjects) List(ctx context.Context, filter models.ThesisProjectFilter) ([]models.ThesisProject, error) {
	return m.all(func(p models.ThesisProject) bool {
		if filter.Year != nil && p.Year != *filter.Year {
			return false
		}
		if filter.Career != "" && p.Career != filter.Career {
			return false
		}
		if filter.Semester != "" && p.Semester != filter.Semester {
			return false
		}
		return filter.DegreeLevel == "" || p.DegreeLevel == filter.DegreeLevel
	}), nil
}

func (m *memoryThesisProjects) ListPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0)
	for _, p := range m.all(nil) {
		if p.FilePath != nil {
			paths = append(paths, *p.FilePath)
		}
	}
	return paths, nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *memoryAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

var testDocumentMIMEs = []string{"application/pdf", "text/plain", "image/png"}

func testStorageConfig(root, staging string) config.StorageConfig {
	limits := config.UploadLimits{MaxFileSizeBytes: 1024, AllowedMIMEs: testDocumentMIMEs}
	return config.StorageConfig{
		RootDir:    root,
		StagingDir: staging,
		Shared:     limits,
		Personal:   config.UploadLimits{MaxFileSizeBytes: 4096, AllowedMIMEs: append([]string{"application/zip"}, testDocumentMIMEs...)},
		Research:   limits,
		Thesis:     limits,
	}
}

type pipelineFixture struct {
	pipeline *FilePipeline
	storage  *storage.LocalStorage
	staging  string
}

func newPipelineFixture(t *testing.T) pipelineFixture {
	t.Helper()
	root := t.TempDir()
	staging := t.TempDir()
	store, err := storage.NewLocalStorage(root)
	require.NoError(t, err)
	return pipelineFixture{
		pipeline: NewFilePipeline(store, testStorageConfig(root, staging), nil, zap.NewNop()),
		storage:  store,
		staging:  staging,
	}
}

// stage writes content into the staging directory the way the upload handler does.
func (f pipelineFixture) stage(t *testing.T, original, mimeType string, content []byte) *StagedUpload {
	t.Helper()
	file, err := os.CreateTemp(f.staging, "upload-*")
	require.NoError(t, err)
	_, err = file.Write(content)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	return &StagedUpload{Path: file.Name(), OriginalName: original, MimeType: mimeType}
}

func (f pipelineFixture) stagedCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.staging)
	require.NoError(t, err)
	return len(entries)
}

func (f pipelineFixture) storedFiles(t *testing.T) []string {
	t.Helper()
	files, err := f.storage.Walk()
	require.NoError(t, err)
	out := make([]string, 0, len(files))
	for _, file := range files {
		out = append(out, filepath.ToSlash(file.Path))
	}
	return out
}

func actorFor(id string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: role, Email: "user" + id + "@institution.edu"}
}

// jam replaces a stored file with a non-empty directory so deleting it fails.
func (f pipelineFixture) jam(t *testing.T, rel string) {
	t.Helper()
	abs, err := f.storage.Path(rel)
	require.NoError(t, err)
	require.NoError(t, os.Remove(abs))
	require.NoError(t, os.MkdirAll(filepath.Join(abs, "held"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(abs, "held", "x"), []byte("x"), 0o600))
}
