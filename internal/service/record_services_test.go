package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memoryCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func validResearchRequest() CreateResearchRecordRequest {
	return CreateResearchRecordRequest{
		Title:       "Graph colouring heuristics",
		Author:      "Ana Rojas",
		Year:        time.Now().Year(),
		Description: "A study of greedy colouring orders.",
	}
}

func TestResearchRecordWithoutFile(t *testing.T) {
	f := newPipelineFixture(t)
	svc := NewResearchRecordService(newMemoryResearchRecords(), f.pipeline, nil, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()
	faculty := actorFor("4", models.RoleFaculty)

	record, err := svc.Create(ctx, faculty, validResearchRequest(), nil)
	require.NoError(t, err)
	assert.Nil(t, record.File())
	assert.Equal(t, "4", record.CreatedBy)

	_, err = svc.Download(ctx, faculty, record.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestResearchRecordValidation(t *testing.T) {
	f := newPipelineFixture(t)
	svc := NewResearchRecordService(newMemoryResearchRecords(), f.pipeline, nil, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	req := validResearchRequest()
	req.Year = time.Now().Year() + 6
	upload := f.stage(t, "paper.pdf", "application/pdf", []byte("%PDF paper"))

	_, err := svc.Create(context.Background(), actorFor("4", models.RoleFaculty), req, upload)
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "year", appErr.Details[0].Field)
	assert.Equal(t, 0, f.stagedCount(t))
}

func TestResearchRecordStudentCannotWrite(t *testing.T) {
	f := newPipelineFixture(t)
	repo := newMemoryResearchRecords()
	svc := NewResearchRecordService(repo, f.pipeline, nil, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, actorFor("2", models.RoleStudent), validResearchRequest(), nil)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	record, err := svc.Create(ctx, actorFor("4", models.RoleFaculty), validResearchRequest(), nil)
	require.NoError(t, err)
	_, err = svc.Get(ctx, actorFor("2", models.RoleStudent), record.ID)
	assert.NoError(t, err)
	err = svc.Delete(ctx, actorFor("5", models.RoleFaculty), record.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestResearchRecordReplaceFile(t *testing.T) {
	f := newPipelineFixture(t)
	svc := NewResearchRecordService(newMemoryResearchRecords(), f.pipeline, nil, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()
	faculty := actorFor("4", models.RoleFaculty)

	record, err := svc.Create(ctx, faculty, validResearchRequest(), f.stage(t, "v1.pdf", "application/pdf", []byte("%PDF v1")))
	require.NoError(t, err)
	first := record.File()
	require.NotNil(t, first)

	updated, err := svc.Update(ctx, faculty, record.ID, UpdateResearchRecordRequest{Title: strPtr("Graph colouring revisited")},
		f.stage(t, "v2.pdf", "application/pdf", []byte("%PDF v2")))
	require.NoError(t, err)
	assert.Equal(t, "Graph colouring revisited", updated.Title)
	assert.Equal(t, "v2.pdf", *updated.FileOriginalName)
	assert.Equal(t, []string{*updated.FilePath}, f.storedFiles(t))

	require.NoError(t, svc.Delete(ctx, faculty, record.ID))
	assert.Empty(t, f.storedFiles(t))
}

func TestResearchRecordDeleteKeepsRowWhenFileRemovalFails(t *testing.T) {
	f := newPipelineFixture(t)
	repo := newMemoryResearchRecords()
	svc := NewResearchRecordService(repo, f.pipeline, nil, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()
	faculty := actorFor("4", models.RoleFaculty)

	record, err := svc.Create(ctx, faculty, validResearchRequest(), f.stage(t, "paper.pdf", "application/pdf", []byte("%PDF paper")))
	require.NoError(t, err)
	f.jam(t, *record.FilePath)

	err = svc.Delete(ctx, faculty, record.ID)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	_, err = repo.get(record.ID)
	assert.NoError(t, err)
}

func TestResearchRecordCacheInvalidatedOnWrite(t *testing.T) {
	f := newPipelineFixture(t)
	cacheRepo := newMemoryCache()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	repo := newMemoryResearchRecords()
	svc := NewResearchRecordService(repo, f.pipeline, cache, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()
	faculty := actorFor("4", models.RoleFaculty)

	_, err := svc.Create(ctx, faculty, validResearchRequest(), nil)
	require.NoError(t, err)

	listed, err := svc.List(ctx, faculty, models.ResearchRecordFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	assert.Equal(t, 1, cacheRepo.size())

	// served from cache even though the table changed underneath
	require.NoError(t, repo.create(&models.ResearchRecord{Title: "direct insert", CreatedBy: "4"}))
	listed, err = svc.List(ctx, faculty, models.ResearchRecordFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = svc.Create(ctx, faculty, validResearchRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, cacheRepo.size())

	listed, err = svc.List(ctx, faculty, models.ResearchRecordFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func validThesisRequest() CreateThesisProjectRequest {
	return CreateThesisProjectRequest{
		Title:    "Scheduling exams with constraint solvers",
		Student1: "Luis Perez",
		Advisor:  "Dr. Ana Rojas",
		Career:   "Computer Engineering",
		Year:     time.Now().Year(),
		Semester: "1",
		Abstract: strings.Repeat("constraint programming applied to timetables. ", 2),
	}
}

func TestThesisProjectDefaultsAndFilters(t *testing.T) {
	f := newPipelineFixture(t)
	cache := NewCacheService(newMemoryCache(), nil, time.Minute, zap.NewNop(), true)
	svc := NewThesisProjectService(newMemoryThesisProjects(), f.pipeline, cache, &memoryAudit{}, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()
	faculty := actorFor("4", models.RoleFaculty)

	project, err := svc.Create(ctx, faculty, validThesisRequest(), f.stage(t, "thesis.pdf", "application/pdf", []byte("%PDF thesis")))
	require.NoError(t, err)
	assert.Equal(t, models.DegreeUndergraduate, project.DegreeLevel)
	require.NotNil(t, project.File())
	assert.True(t, strings.HasPrefix(*project.FilePath, "thesis-projects/4/"))

	second := validThesisRequest()
	second.Semester = "2"
	second.DegreeLevel = models.DegreeMasters
	_, err = svc.Create(ctx, faculty, second, nil)
	require.NoError(t, err)

	listed, err := svc.List(ctx, actorFor("2", models.RoleStudent), models.ThesisProjectFilter{Semester: "2"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, models.DegreeMasters, listed[0].DegreeLevel)

	got, err := svc.Get(ctx, actorFor("2", models.RoleStudent), project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.Title, got.Title)

	download, err := svc.Download(ctx, actorFor("2", models.RoleStudent), project.ID)
	require.NoError(t, err)
	assert.Equal(t, "thesis.pdf", download.OriginalName)
}

func TestThesisProjectValidation(t *testing.T) {
	f := newPipelineFixture(t)
	svc := NewThesisProjectService(newMemoryThesisProjects(), f.pipeline, nil, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	req := validThesisRequest()
	req.Year = 1999
	req.Semester = "3"
	req.Abstract = "too short"

	_, err := svc.Create(context.Background(), actorFor("4", models.RoleFaculty), req, nil)
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	fields := make([]string, 0, len(appErr.Details))
	for _, d := range appErr.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"year", "semester", "abstract"}, fields)
}

func TestThesisProjectDeleteTwice(t *testing.T) {
	f := newPipelineFixture(t)
	svc := NewThesisProjectService(newMemoryThesisProjects(), f.pipeline, nil, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()
	admin := actorFor("1", models.RoleAdmin)

	project, err := svc.Create(ctx, actorFor("4", models.RoleFaculty), validThesisRequest(), f.stage(t, "t.pdf", "application/pdf", []byte("%PDF t")))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, admin, project.ID))
	assert.Empty(t, f.storedFiles(t))
	assert.True(t, errors.Is(svc.Delete(ctx, admin, project.ID), appErrors.ErrNotFound))
}
