package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/repository"
)

// memoryCredentialStore mimics the users and credential_escrow tables,
// including their unique constraints.
type memoryCredentialStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	escrow map[string]string
	audits []*models.AuditLog

	failSecret error
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{users: map[string]*models.User{}, escrow: map[string]string{}}
}

func (m *memoryCredentialStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryCredentialStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *memoryCredentialStore) FindByLegalID(ctx context.Context, legalID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.LegalID == legalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryCredentialStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memoryCredentialStore) EscrowSecretExists(ctx context.Context, secret string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.escrow {
		if s == secret {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryCredentialStore) GetEscrow(ctx context.Context, userID string) (*models.CredentialEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.escrow[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CredentialEscrow{UserID: userID, PlaintextSecret: s}, nil
}

func (m *memoryCredentialStore) conflict(user *models.User) error {
	for _, u := range m.users {
		if u.ID == user.ID {
			continue
		}
		if u.Email == user.Email {
			return &repository.DuplicateError{Constraint: "users_email_key", Err: repository.ErrDuplicate}
		}
		if u.LegalID == user.LegalID {
			return &repository.DuplicateError{Constraint: "users_legal_id_key", Err: repository.ErrDuplicate}
		}
	}
	return nil
}

func (m *memoryCredentialStore) Create(ctx context.Context, user *models.User, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := m.conflict(user); err != nil {
		return err
	}
	cp := *user
	m.users[user.ID] = &cp
	if secret != "" {
		m.escrow[user.ID] = secret
	}
	return nil
}

func (m *memoryCredentialStore) Update(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := m.conflict(user); err != nil {
		return err
	}
	cp := *user
	cp.PasswordHash = existing.PasswordHash
	m.users[user.ID] = &cp
	return nil
}

func (m *memoryCredentialStore) UpdateWithSecret(ctx context.Context, user *models.User, hash, plaintext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	if m.failSecret != nil {
		return m.failSecret
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := m.conflict(user); err != nil {
		return err
	}
	cp := *user
	cp.PasswordHash = hash
	m.users[user.ID] = &cp
	m.escrow[user.ID] = plaintext
	return nil
}

func (m *memoryCredentialStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	delete(m.escrow, id)
	return nil
}

func (m *memoryCredentialStore) List(ctx context.Context, filter models.UserFilter) ([]models.UserWithEscrow, int, error) {
	all, _ := m.ListAll(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.UserWithEscrow, 0, len(all))
	for _, u := range all {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		row := models.UserWithEscrow{User: u}
		if s, ok := m.escrow[u.ID]; ok {
			secret := s
			row.EscrowSecret = &secret
		}
		out = append(out, row)
	}
	return out, len(out), nil
}

func (m *memoryCredentialStore) ListAll(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryCredentialStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, log)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []AccessCodeNotice
}

func (r *recordingNotifier) NotifyAccessCode(ctx context.Context, notice AccessCodeNotice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}
