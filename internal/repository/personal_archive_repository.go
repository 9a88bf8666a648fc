package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/research-portal-api/internal/models"
)

const personalArchiveColumns = `id, owner_id, stored_name, original_name, path, size, mime_type, description, folder, tags, favorite, created_at, updated_at`

// PersonalArchiveRepository persists faculty personal archives.
type PersonalArchiveRepository struct {
	db *sqlx.DB
}

// NewPersonalArchiveRepository constructs the repository.
func NewPersonalArchiveRepository(db *sqlx.DB) *PersonalArchiveRepository {
	return &PersonalArchiveRepository{db: db}
}

// Create inserts a personal archive row.
func (r *PersonalArchiveRepository) Create(ctx context.Context, item *models.PersonalArchive) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO personal_archives (` + personalArchiveColumns + `)
VALUES (:id, :owner_id, :stored_name, :original_name, :path, :size, :mime_type, :description, :folder, :tags, :favorite, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create personal archive: %w", mapPQError(err))
	}
	return nil
}

// GetByID returns a single personal archive.
func (r *PersonalArchiveRepository) GetByID(ctx context.Context, id string) (*models.PersonalArchive, error) {
	var item models.PersonalArchive
	if err := r.db.GetContext(ctx, &item, `SELECT `+personalArchiveColumns+` FROM personal_archives WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get personal archive: %w", err)
	}
	return &item, nil
}

// List returns personal archives for the filter. Tag matching is left to the caller.
func (r *PersonalArchiveRepository) List(ctx context.Context, filter models.PersonalArchiveFilter) ([]models.PersonalArchive, error) {
	var c conditions
	if filter.OwnerID != "" {
		c.add("owner_id = $%d", filter.OwnerID)
	}
	if filter.Folder != "" {
		c.add("folder = $%d", filter.Folder)
	}
	if filter.Favorite != nil {
		c.add("favorite = $%d", *filter.Favorite)
	}
	query := `SELECT ` + personalArchiveColumns + ` FROM personal_archives` + c.where() + ` ORDER BY created_at DESC`
	items := make([]models.PersonalArchive, 0)
	if err := r.db.SelectContext(ctx, &items, query, c.args...); err != nil {
		return nil, fmt.Errorf("list personal archives: %w", err)
	}
	return items, nil
}

// Folders counts the owner's archives per folder.
func (r *PersonalArchiveRepository) Folders(ctx context.Context, ownerID string) ([]models.FolderSummary, error) {
	const query = `SELECT folder, COUNT(*) AS count FROM personal_archives WHERE owner_id = $1 GROUP BY folder ORDER BY folder ASC`
	folders := make([]models.FolderSummary, 0)
	if err := r.db.SelectContext(ctx, &folders, query, ownerID); err != nil {
		return nil, fmt.Errorf("list personal folders: %w", err)
	}
	return folders, nil
}

// Update writes the descriptive fields of a personal archive.
func (r *PersonalArchiveRepository) Update(ctx context.Context, item *models.PersonalArchive) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE personal_archives SET description = :description, folder = :folder, tags = :tags, favorite = :favorite, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update personal archive: %w", err)
	}
	return expectAffected(res)
}

// Delete removes the row; sql.ErrNoRows when it was already gone.
func (r *PersonalArchiveRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM personal_archives WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete personal archive: %w", err)
	}
	return expectAffected(res)
}

// ListPaths returns every stored file path referenced by a row.
func (r *PersonalArchiveRepository) ListPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0)
	if err := r.db.SelectContext(ctx, &paths, `SELECT path FROM personal_archives`); err != nil {
		return nil, fmt.Errorf("list personal archive paths: %w", err)
	}
	return paths, nil
}
