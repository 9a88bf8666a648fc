package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/research-portal-api/internal/models"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

func newTestRegistration(store *memoryCredentialStore, notifier accessCodeNotifier) *RegistrationService {
	policy := testEmailPolicy()
	svc := NewRegistrationService(store, NewAccessCodeGenerator(store.EscrowSecretExists), policy, notifier, NewMetricsService(), NewValidator(policy), zap.NewNop())
	svc.hashCost = bcrypt.MinCost
	return svc
}

func TestRegisterDerivesRoleFromEmail(t *testing.T) {
	store := newMemoryCredentialStore()
	notifier := &recordingNotifier{}
	svc := newTestRegistration(store, notifier)

	faculty, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Ana Rojas", Email: "ana@institution.edu", LegalID: "12.345.678-9"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleFaculty, faculty.User.Role)

	student, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Bruno Diaz", Email: "bruno@students.institution.edu", LegalID: "11.111.111-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, student.User.Role)

	assert.Regexp(t, regexp.MustCompile(`^\d{5}$`), faculty.AccessCode)
	escrow, err := store.GetEscrow(context.Background(), faculty.User.ID)
	require.NoError(t, err)
	assert.Equal(t, faculty.AccessCode, escrow.PlaintextSecret)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(faculty.User.PasswordHash), []byte(faculty.AccessCode)))

	require.Len(t, notifier.notices, 2)
	assert.Equal(t, "ana@institution.edu", notifier.notices[0].Email)
	assert.Len(t, store.audits, 2)
}

func TestRegisterRejectsInvalidPayload(t *testing.T) {
	svc := newTestRegistration(newMemoryCredentialStore(), nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Eve", Email: "eve@gmail.com", LegalID: "12.345.678-9"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, "email", appErr.Details[0].Field)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	store := newMemoryCredentialStore()
	svc := newTestRegistration(store, nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Ana Rojas", Email: "ana@institution.edu", LegalID: "12.345.678-9"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), models.RegisterRequest{Name: "Ana Again", Email: "ANA@institution.edu", LegalID: "9.876.543-2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, "email", appErrors.FromError(err).Details[0].Field)

	_, err = svc.Register(context.Background(), models.RegisterRequest{Name: "Other", Email: "other@institution.edu", LegalID: "12.345.678-9"})
	require.Error(t, err)
	assert.Equal(t, "legalId", appErrors.FromError(err).Details[0].Field)
}

func TestConcurrentRegistrationSameEmailAdmitsOne(t *testing.T) {
	store := newMemoryCredentialStore()
	svc := newTestRegistration(store, nil)

	const attempts = 8
	var wg sync.WaitGroup
	var successes, conflicts int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			legalID := []string{"10.000.000-1", "10.000.000-2", "10.000.000-3", "10.000.000-4", "10.000.000-5", "10.000.000-6", "10.000.000-7", "10.000.000-8"}[i]
			_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Same Person", Email: "same@institution.edu", LegalID: legalID})
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, appErrors.ErrConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(attempts-1), conflicts)
	count, _ := store.Count(context.Background())
	assert.Equal(t, 1, count)
}

func TestAccessCodeGeneratorDrawsFiveDigits(t *testing.T) {
	gen := NewAccessCodeGenerator(func(ctx context.Context, code string) (bool, error) { return false, nil })
	for i := 0; i < 200; i++ {
		code, err := gen.Generate(context.Background())
		require.NoError(t, err)
		assert.Regexp(t, `^[1-9]\d{4}$`, code)
	}
}

func TestAccessCodeGeneratorExhaustsAfterHundredAttempts(t *testing.T) {
	var checks int
	gen := NewAccessCodeGenerator(func(ctx context.Context, code string) (bool, error) {
		checks++
		return true, nil
	})

	_, err := gen.Generate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrExhaustedRetries))
	assert.Equal(t, 100, checks)
}

func TestAccessCodeGeneratorRetriesCollisions(t *testing.T) {
	draws := []int{12345, 12345, 54321}
	gen := NewAccessCodeGenerator(func(ctx context.Context, code string) (bool, error) { return code == "12345", nil })
	gen.draw = func() (int, error) {
		n := draws[0]
		draws = draws[1:]
		return n, nil
	}

	code, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "54321", code)
}

func TestRegisterPropagatesExhaustedRetries(t *testing.T) {
	store := newMemoryCredentialStore()
	policy := testEmailPolicy()
	gen := NewAccessCodeGenerator(func(ctx context.Context, code string) (bool, error) { return true, nil })
	svc := NewRegistrationService(store, gen, policy, nil, nil, nil, nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Ana Rojas", Email: "ana@institution.edu", LegalID: "12.345.678-9"})
	assert.True(t, errors.Is(err, appErrors.ErrExhaustedRetries))
	count, _ := store.Count(context.Background())
	assert.Zero(t, count)
}

func TestBootstrapSeedsAdminsOnce(t *testing.T) {
	store := newMemoryCredentialStore()
	svc := NewBootstrapService(store, testBootstrapConfig(), zap.NewNop())

	require.NoError(t, svc.Run(context.Background()))
	require.NoError(t, svc.Run(context.Background()))

	count, _ := store.Count(context.Background())
	assert.Equal(t, 2, count)
	admin, err := store.FindByEmail(context.Background(), "su.user@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	super, err := store.FindByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, super.Role)
	escrow, err := store.GetEscrow(context.Background(), super.ID)
	require.NoError(t, err)
	assert.Equal(t, "rootsecret", escrow.PlaintextSecret)
}

func TestBootstrapSkipsAdminWhenStoreNotEmpty(t *testing.T) {
	store := newMemoryCredentialStore()
	require.NoError(t, store.Create(context.Background(), &models.User{Name: "Ana", LegalID: "1-1", Email: "ana@institution.edu", Role: models.RoleFaculty}, "12345"))
	svc := NewBootstrapService(store, testBootstrapConfig(), nil)

	require.NoError(t, svc.Run(context.Background()))
	_, err := store.FindByEmail(context.Background(), "su.user@example.com")
	assert.Error(t, err)
	_, err = store.FindByEmail(context.Background(), "root@example.com")
	assert.NoError(t, err)
}
