package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

type sharedFixture struct {
	pipelineFixture
	repo     *memorySharedArchives
	research *memoryResearchRecords
	audit    *memoryAudit
	svc      *SharedArchiveService
}

func newSharedFixture(t *testing.T) sharedFixture {
	f := newPipelineFixture(t)
	repo := newMemorySharedArchives()
	research := newMemoryResearchRecords()
	audit := &memoryAudit{}
	svc := NewSharedArchiveService(repo, research, f.pipeline, audit, NewValidator(testEmailPolicy()), zap.NewNop())
	return sharedFixture{pipelineFixture: f, repo: repo, research: research, audit: audit, svc: svc}
}

func TestSharedArchiveRoundTrip(t *testing.T) {
	f := newSharedFixture(t)
	ctx := context.Background()
	owner := actorFor("5", models.RoleStudent)
	content := []byte("%PDF-1.4 syllabus body")

	item, err := f.svc.Create(ctx, owner, CreateSharedArchiveRequest{Description: "syllabus"}, f.stage(t, "Syllabus.pdf", "application/pdf", content))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultFolder, item.Folder)
	assert.Equal(t, models.CategoryPersonal, item.Category)
	assert.False(t, item.IsPublic)

	download, err := f.svc.Download(ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Syllabus.pdf", download.OriginalName)
	assert.Equal(t, "application/pdf", download.MimeType)
	got, err := os.ReadFile(download.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	assert.Equal(t, []string{models.AuditActionUpload}, f.audit.actions())
}

func TestSharedArchiveDeleteTwice(t *testing.T) {
	f := newSharedFixture(t)
	ctx := context.Background()
	owner := actorFor("5", models.RoleFaculty)

	item, err := f.svc.Create(ctx, owner, CreateSharedArchiveRequest{}, f.stage(t, "a.txt", "text/plain", []byte("a")))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, owner, item.ID))
	exists, err := f.storage.Exists(item.Path)
	require.NoError(t, err)
	assert.False(t, exists)

	err = f.svc.Delete(ctx, owner, item.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestSharedArchiveDeleteKeepsRowWhenFileRemovalFails(t *testing.T) {
	f := newSharedFixture(t)
	ctx := context.Background()
	owner := actorFor("5", models.RoleFaculty)

	item, err := f.svc.Create(ctx, owner, CreateSharedArchiveRequest{}, f.stage(t, "a.txt", "text/plain", []byte("a")))
	require.NoError(t, err)
	f.jam(t, item.Path)

	err = f.svc.Delete(ctx, owner, item.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	_, err = f.repo.get(item.ID)
	assert.NoError(t, err, "row must survive a failed file removal")
	assert.Equal(t, []string{models.AuditActionUpload}, f.audit.actions())
}

func TestPersonalArchiveDeleteRemovesFileBeforeRow(t *testing.T) {
	f := newPipelineFixture(t)
	repo := newMemoryPersonalArchives()
	svc := NewPersonalArchiveService(repo, f.pipeline, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()
	faculty := actorFor("9", models.RoleFaculty)

	item, err := svc.Create(ctx, faculty, CreatePersonalArchiveRequest{}, f.stage(t, "notes.txt", "text/plain", []byte("notes")))
	require.NoError(t, err)
	f.jam(t, item.Path)

	err = svc.Delete(ctx, faculty, item.ID)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	_, err = repo.get(item.ID)
	assert.NoError(t, err)
}

func TestSharedArchiveVisibility(t *testing.T) {
	f := newSharedFixture(t)
	ctx := context.Background()
	owner := actorFor("1", models.RoleFaculty)
	student := actorFor("2", models.RoleStudent)
	admin := actorFor("3", models.RoleAdmin)

	private, err := f.svc.Create(ctx, owner, CreateSharedArchiveRequest{}, f.stage(t, "private.pdf", "application/pdf", []byte("%PDF private")))
	require.NoError(t, err)
	public, err := f.svc.Create(ctx, owner, CreateSharedArchiveRequest{IsPublic: true}, f.stage(t, "public.pdf", "application/pdf", []byte("%PDF public")))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, student, private.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = f.svc.Download(ctx, student, private.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.Get(ctx, student, public.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, admin, private.ID)
	assert.NoError(t, err)

	listed, err := f.svc.List(ctx, student, models.SharedArchiveFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, public.ID, listed[0].ID)

	listed, err = f.svc.List(ctx, admin, models.SharedArchiveFilter{VisibleTo: "ignored"})
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	_, err = f.svc.Update(ctx, student, public.ID, UpdateSharedArchiveRequest{Description: strPtr("mine now")})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	err = f.svc.Delete(ctx, student, public.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestSharedArchiveUpdateAllowList(t *testing.T) {
	f := newSharedFixture(t)
	ctx := context.Background()
	owner := actorFor("1", models.RoleFaculty)

	item, err := f.svc.Create(ctx, owner, CreateSharedArchiveRequest{}, f.stage(t, "a.pdf", "application/pdf", []byte("%PDF a")))
	require.NoError(t, err)

	public := true
	updated, err := f.svc.Update(ctx, owner, item.ID, UpdateSharedArchiveRequest{
		Folder:   strPtr("  "),
		Category: strPtr(models.CategoryResearch),
		IsPublic: &public,
		Tags:     strPtr(" ai, ml "),
	})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultFolder, updated.Folder)
	assert.Equal(t, models.CategoryResearch, updated.Category)
	assert.True(t, updated.IsPublic)
	assert.Equal(t, "ai, ml", updated.Tags)
	assert.Equal(t, item.Path, updated.Path)

	_, err = f.svc.Update(ctx, owner, item.ID, UpdateSharedArchiveRequest{Category: strPtr("secret")})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "category", appErr.Details[0].Field)
}

func TestSharedArchiveUnknownResearchRecord(t *testing.T) {
	f := newSharedFixture(t)
	ctx := context.Background()
	owner := actorFor("1", models.RoleFaculty)
	upload := f.stage(t, "a.pdf", "application/pdf", []byte("%PDF a"))

	missing := "6f1c2a8e-6c5b-4d7e-9f3a-0b1c2d3e4f50"
	_, err := f.svc.Create(ctx, owner, CreateSharedArchiveRequest{ResearchRecordID: &missing}, upload)
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "researchRecordId", appErr.Details[0].Field)
	assert.Equal(t, 0, f.stagedCount(t))
	assert.Empty(t, f.storedFiles(t))
}

func TestSharedArchivePayloadRejectedLeavesNothing(t *testing.T) {
	f := newSharedFixture(t)
	_, err := f.svc.Create(context.Background(), actorFor("1", models.RoleStudent), CreateSharedArchiveRequest{},
		f.stage(t, "tool.exe", "application/x-msdownload", []byte("MZ")))
	assert.True(t, errors.Is(err, appErrors.ErrPayloadRejected))
	assert.Equal(t, 0, f.stagedCount(t))
	assert.Empty(t, f.storedFiles(t))
	assert.Empty(t, f.repo.all(nil))
}

func TestSharedArchivePersistFailureRemovesFile(t *testing.T) {
	f := newSharedFixture(t)
	f.repo.failWrite = errors.New("connection reset")

	_, err := f.svc.Create(context.Background(), actorFor("1", models.RoleStudent), CreateSharedArchiveRequest{},
		f.stage(t, "a.pdf", "application/pdf", []byte("%PDF a")))
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, f.storedFiles(t))
	assert.Equal(t, 0, f.stagedCount(t))
}

func TestPersonalArchiveFacultyScenario(t *testing.T) {
	f := newPipelineFixture(t)
	repo := newMemoryPersonalArchives()
	svc := NewPersonalArchiveService(repo, f.pipeline, &memoryAudit{}, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()
	faculty := actorFor("9", models.RoleFaculty)

	item, err := svc.Create(ctx, faculty, CreatePersonalArchiveRequest{Tags: "Thesis, Drafts"},
		f.stage(t, "draft.txt", "text/plain", []byte("chapter one")))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultFolder, item.Folder)
	assert.Contains(t, strings.Split(item.Path, "/"), "9")

	folders, err := svc.Folders(ctx, faculty)
	require.NoError(t, err)
	assert.Equal(t, []models.FolderSummary{{Folder: models.DefaultFolder, Count: 1}}, folders)

	tagged, err := svc.List(ctx, faculty, models.PersonalArchiveFilter{Tags: "draft"})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)
	untagged, err := svc.List(ctx, faculty, models.PersonalArchiveFilter{Tags: "budget"})
	require.NoError(t, err)
	assert.Empty(t, untagged)

	require.NoError(t, svc.Delete(ctx, faculty, item.ID))
	_, err = svc.Get(ctx, faculty, item.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, f.storedFiles(t))
}

func TestPersonalArchiveOwnerOnly(t *testing.T) {
	f := newPipelineFixture(t)
	repo := newMemoryPersonalArchives()
	svc := NewPersonalArchiveService(repo, f.pipeline, nil, NewValidator(testEmailPolicy()), zap.NewNop())
	ctx := context.Background()
	owner := actorFor("9", models.RoleFaculty)
	other := actorFor("10", models.RoleFaculty)

	item, err := svc.Create(ctx, owner, CreatePersonalArchiveRequest{}, f.stage(t, "a.txt", "text/plain", []byte("a")))
	require.NoError(t, err)

	_, err = svc.Get(ctx, other, item.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	listed, err := svc.List(ctx, other, models.PersonalArchiveFilter{OwnerID: owner.UserID})
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = svc.Create(ctx, actorFor("11", models.RoleStudent), CreatePersonalArchiveRequest{}, f.stage(t, "b.txt", "text/plain", []byte("b")))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Equal(t, 0, f.stagedCount(t))
}
