package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/research-portal-api/internal/models"
)

const userColumns = `id, name, legal_id, email, password_hash, role, created_at, updated_at`

const upsertEscrowQuery = `INSERT INTO credential_escrow (user_id, plaintext_secret, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET plaintext_secret = EXCLUDED.plaintext_secret, updated_at = EXCLUDED.updated_at`

// UserRepository is the credential store: identities plus their escrowed secrets.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address (case-insensitive).
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByLegalID returns a user by national id.
func (r *UserRepository) FindByLegalID(ctx context.Context, legalID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE legal_id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, legalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by legal id: %w", err)
	}
	return &user, nil
}

// Count returns the number of stored identities.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return total, nil
}

// EscrowSecretExists reports whether a plaintext secret is already escrowed.
func (r *UserRepository) EscrowSecretExists(ctx context.Context, secret string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM credential_escrow WHERE plaintext_secret = $1)`, secret); err != nil {
		return false, fmt.Errorf("check escrowed secret: %w", err)
	}
	return exists, nil
}

// GetEscrow returns the escrowed secret of a user.
func (r *UserRepository) GetEscrow(ctx context.Context, userID string) (*models.CredentialEscrow, error) {
	var escrow models.CredentialEscrow
	const query = `SELECT user_id, plaintext_secret, updated_at FROM credential_escrow WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &escrow, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get escrow: %w", err)
	}
	return &escrow, nil
}

// Create inserts the identity and, when secret is not empty, its escrow row in one transaction.
func (r *UserRepository) Create(ctx context.Context, user *models.User, secret string) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user tx: %w", err)
	}
	const query = `INSERT INTO users (id, name, legal_id, email, password_hash, role, created_at, updated_at) VALUES (:id, :name, :legal_id, :email, :password_hash, :role, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, user); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("create user: %w", mapPQError(err))
	}
	if secret != "" {
		if _, err := tx.ExecContext(ctx, upsertEscrowQuery, user.ID, secret, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("create escrow: %w", mapPQError(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user tx: %w", mapPQError(err))
	}
	return nil
}

// Update writes the mutable profile fields and role.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	const query = `UPDATE users SET name = :name, legal_id = :legal_id, email = :email, role = :role, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("update user: %w", mapPQError(err))
	}
	return expectAffected(res)
}

// UpdateWithSecret writes the profile, the secret hash and the escrow in one
// transaction; a failure in any step leaves the identity unchanged.
func (r *UserRepository) UpdateWithSecret(ctx context.Context, user *models.User, passwordHash, plaintext string) error {
	user.UpdatedAt = time.Now().UTC()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset secret tx: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET name = $2, legal_id = $3, email = $4, role = $5, password_hash = $6, updated_at = $7 WHERE id = $1`,
		user.ID, user.Name, user.LegalID, user.Email, user.Role, passwordHash, user.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update user secret: %w", mapPQError(err))
	}
	if err := expectAffected(res); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertEscrowQuery, user.ID, plaintext, user.UpdatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert escrow: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset secret tx: %w", err)
	}
	return nil
}

// Delete removes an identity; the escrow row goes with it.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectAffected(res)
}

// List returns users joined with their escrowed secret, with the total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.UserWithEscrow, int, error) {
	baseQuery := `FROM users u LEFT JOIN credential_escrow e ON e.user_id = u.id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("u.role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.email) LIKE $%d OR LOWER(u.name) LIKE $%d OR u.legal_id LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT u.id, u.name, u.legal_id, u.email, u.password_hash, u.role, u.created_at, u.updated_at, e.plaintext_secret %s ORDER BY u.created_at DESC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)
	var users []models.UserWithEscrow
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// ListAll returns every identity ordered by name, for roster exports.
func (r *UserRepository) ListAll(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list all users: %w", err)
	}
	return users, nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// expectAffected turns a zero row update or delete into sql.ErrNoRows.
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
