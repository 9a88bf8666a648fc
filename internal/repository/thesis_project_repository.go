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

const thesisProjectColumns = `id, title, student1, student2, degree_level, advisor, co_advisor, career, year, semester, abstract, keywords, file_stored_name, file_original_name, file_path, file_size, file_mime_type, created_by, created_at, updated_at`

// ThesisProjectRepository persists thesis projects.
type ThesisProjectRepository struct {
	db *sqlx.DB
}

// NewThesisProjectRepository constructs the repository.
func NewThesisProjectRepository(db *sqlx.DB) *ThesisProjectRepository {
	return &ThesisProjectRepository{db: db}
}

// Create inserts a thesis project.
func (r *ThesisProjectRepository) Create(ctx context.Context, project *models.ThesisProject) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	const query = `INSERT INTO thesis_projects (` + thesisProjectColumns + `)
VALUES (:id, :title, :student1, :student2, :degree_level, :advisor, :co_advisor, :career, :year, :semester, :abstract, :keywords,
:file_stored_name, :file_original_name, :file_path, :file_size, :file_mime_type, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("create thesis project: %w", mapPQError(err))
	}
	return nil
}

// GetByID returns one thesis project.
func (r *ThesisProjectRepository) GetByID(ctx context.Context, id string) (*models.ThesisProject, error) {
	var project models.ThesisProject
	if err := r.db.GetContext(ctx, &project, `SELECT `+thesisProjectColumns+` FROM thesis_projects WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get thesis project: %w", err)
	}
	return &project, nil
}

// List returns thesis projects matching every non-empty filter field.
func (r *ThesisProjectRepository) List(ctx context.Context, filter models.ThesisProjectFilter) ([]models.ThesisProject, error) {
	var c conditions
	if filter.Year != nil {
		c.add("year = $%d", *filter.Year)
	}
	if filter.Career != "" {
		c.add("career = $%d", filter.Career)
	}
	if filter.Semester != "" {
		c.add("semester = $%d", filter.Semester)
	}
	if filter.DegreeLevel != "" {
		c.add("degree_level = $%d", filter.DegreeLevel)
	}
	query := `SELECT ` + thesisProjectColumns + ` FROM thesis_projects` + c.where() + ` ORDER BY year DESC, semester DESC, created_at DESC`
	projects := make([]models.ThesisProject, 0)
	if err := r.db.SelectContext(ctx, &projects, query, c.args...); err != nil {
		return nil, fmt.Errorf("list thesis projects: %w", err)
	}
	return projects, nil
}

// Update writes the descriptive fields together with the current attachment.
func (r *ThesisProjectRepository) Update(ctx context.Context, project *models.ThesisProject) error {
	project.UpdatedAt = time.Now().UTC()
	const query = `UPDATE thesis_projects SET title = :title, student1 = :student1, student2 = :student2, degree_level = :degree_level,
advisor = :advisor, co_advisor = :co_advisor, career = :career, year = :year, semester = :semester, abstract = :abstract, keywords = :keywords,
file_stored_name = :file_stored_name, file_original_name = :file_original_name, file_path = :file_path, file_size = :file_size, file_mime_type = :file_mime_type,
updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, project)
	if err != nil {
		return fmt.Errorf("update thesis project: %w", err)
	}
	return expectAffected(res)
}

// Delete removes the row; sql.ErrNoRows when it was already gone.
func (r *ThesisProjectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM thesis_projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete thesis project: %w", err)
	}
	return expectAffected(res)
}

// ListPaths returns every attached file path.
func (r *ThesisProjectRepository) ListPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0)
	if err := r.db.SelectContext(ctx, &paths, `SELECT file_path FROM thesis_projects WHERE file_path IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("list thesis project paths: %w", err)
	}
	return paths, nil
}
