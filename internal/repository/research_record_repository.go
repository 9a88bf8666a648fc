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

const researchRecordColumns = `id, title, author, co_author, year, description, file_stored_name, file_original_name, file_path, file_size, file_mime_type, created_by, created_at, updated_at`

// ResearchRecordRepository persists research records.
type ResearchRecordRepository struct {
	db *sqlx.DB
}

// NewResearchRecordRepository constructs the repository.
func NewResearchRecordRepository(db *sqlx.DB) *ResearchRecordRepository {
	return &ResearchRecordRepository{db: db}
}

// Create inserts a research record.
func (r *ResearchRecordRepository) Create(ctx context.Context, record *models.ResearchRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	const query = `INSERT INTO research_records (` + researchRecordColumns + `)
VALUES (:id, :title, :author, :co_author, :year, :description, :file_stored_name, :file_original_name, :file_path, :file_size, :file_mime_type, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create research record: %w", mapPQError(err))
	}
	return nil
}

// GetByID returns one research record.
func (r *ResearchRecordRepository) GetByID(ctx context.Context, id string) (*models.ResearchRecord, error) {
	var record models.ResearchRecord
	if err := r.db.GetContext(ctx, &record, `SELECT `+researchRecordColumns+` FROM research_records WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get research record: %w", err)
	}
	return &record, nil
}

// Exists reports whether a research record with the id is present.
func (r *ResearchRecordRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM research_records WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check research record: %w", err)
	}
	return exists, nil
}

// List returns research records, most recent year first.
func (r *ResearchRecordRepository) List(ctx context.Context, filter models.ResearchRecordFilter) ([]models.ResearchRecord, error) {
	var c conditions
	if filter.Year != nil {
		c.add("year = $%d", *filter.Year)
	}
	if filter.Author != "" {
		c.add("author = $%d", filter.Author)
	}
	query := `SELECT ` + researchRecordColumns + ` FROM research_records` + c.where() + ` ORDER BY year DESC, created_at DESC`
	records := make([]models.ResearchRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, c.args...); err != nil {
		return nil, fmt.Errorf("list research records: %w", err)
	}
	return records, nil
}

// Update writes the descriptive fields together with the current attachment.
func (r *ResearchRecordRepository) Update(ctx context.Context, record *models.ResearchRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE research_records SET title = :title, author = :author, co_author = :co_author, year = :year, description = :description,
file_stored_name = :file_stored_name, file_original_name = :file_original_name, file_path = :file_path, file_size = :file_size, file_mime_type = :file_mime_type,
updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("update research record: %w", err)
	}
	return expectAffected(res)
}

// Delete removes the row; sql.ErrNoRows when it was already gone.
func (r *ResearchRecordRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM research_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete research record: %w", err)
	}
	return expectAffected(res)
}

// ListPaths returns every attached file path.
func (r *ResearchRecordRepository) ListPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0)
	if err := r.db.SelectContext(ctx, &paths, `SELECT file_path FROM research_records WHERE file_path IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("list research record paths: %w", err)
	}
	return paths, nil
}
