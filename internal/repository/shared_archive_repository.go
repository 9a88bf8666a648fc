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

const sharedArchiveColumns = `id, owner_id, stored_name, original_name, path, size, mime_type, folder, category, is_public, description, version, author, tags, research_record_id, created_at, updated_at`

// SharedArchiveRepository persists shared archive metadata.
type SharedArchiveRepository struct {
	db *sqlx.DB
}

// NewSharedArchiveRepository constructs the repository.
func NewSharedArchiveRepository(db *sqlx.DB) *SharedArchiveRepository {
	return &SharedArchiveRepository{db: db}
}

// Create inserts a shared archive row.
func (r *SharedArchiveRepository) Create(ctx context.Context, item *models.SharedArchive) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO shared_archives (` + sharedArchiveColumns + `)
VALUES (:id, :owner_id, :stored_name, :original_name, :path, :size, :mime_type, :folder, :category, :is_public, :description, :version, :author, :tags, :research_record_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create shared archive: %w", mapPQError(err))
	}
	return nil
}

// GetByID returns a single shared archive.
func (r *SharedArchiveRepository) GetByID(ctx context.Context, id string) (*models.SharedArchive, error) {
	var item models.SharedArchive
	if err := r.db.GetContext(ctx, &item, `SELECT `+sharedArchiveColumns+` FROM shared_archives WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get shared archive: %w", err)
	}
	return &item, nil
}

// List returns shared archives matching the filter, newest first.
func (r *SharedArchiveRepository) List(ctx context.Context, filter models.SharedArchiveFilter) ([]models.SharedArchive, error) {
	var c conditions
	if filter.Category != "" {
		c.add("category = $%d", filter.Category)
	}
	if filter.Folder != "" {
		c.add("folder = $%d", filter.Folder)
	}
	if filter.ResearchRecordID != "" {
		c.add("research_record_id = $%d", filter.ResearchRecordID)
	}
	if filter.VisibleTo != "" {
		c.add("(is_public = TRUE OR owner_id = $%d)", filter.VisibleTo)
	}
	query := `SELECT ` + sharedArchiveColumns + ` FROM shared_archives` + c.where() + ` ORDER BY created_at DESC`
	items := make([]models.SharedArchive, 0)
	if err := r.db.SelectContext(ctx, &items, query, c.args...); err != nil {
		return nil, fmt.Errorf("list shared archives: %w", err)
	}
	return items, nil
}

// Update writes the descriptive fields of a shared archive.
func (r *SharedArchiveRepository) Update(ctx context.Context, item *models.SharedArchive) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE shared_archives SET folder = :folder, category = :category, is_public = :is_public, description = :description,
version = :version, author = :author, tags = :tags, research_record_id = :research_record_id, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update shared archive: %w", err)
	}
	return expectAffected(res)
}

// Delete removes the row; sql.ErrNoRows when it was already gone.
func (r *SharedArchiveRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shared_archives WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete shared archive: %w", err)
	}
	return expectAffected(res)
}

// ListPaths returns every stored file path referenced by a row.
func (r *SharedArchiveRepository) ListPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0)
	if err := r.db.SelectContext(ctx, &paths, `SELECT path FROM shared_archives`); err != nil {
		return nil, fmt.Errorf("list shared archive paths: %w", err)
	}
	return paths, nil
}
