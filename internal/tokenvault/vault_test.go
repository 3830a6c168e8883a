package tokenvault

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/models"
	"auction-settlement/internal/repository"
)

// fakeClock is a settable time source safe for concurrent use
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestVault(store repository.TokenDB) (*Vault, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(PurposeVerifyEmail, store, time.Hour, WithClock(clock.Now), WithHashCost(bcrypt.MinCost)), clock
}

func TestVault_IssueAndConsume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vault, _ := newTestVault(repository.NewMemoryRepo())

	secret, err := vault.Issue(ctx, "user1")
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), secret)

	require.NoError(t, vault.Consume(ctx, "user1", secret))

	// single use: the second consume finds nothing
	err = vault.Consume(ctx, "user1", secret)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

func TestVault_Consume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name      string
		run       func(t *testing.T, v *Vault, clock *fakeClock) error
		wantError error
	}{
		{
			name: "never_issued",
			run: func(t *testing.T, v *Vault, _ *fakeClock) error {
				return v.Consume(ctx, "user1", "123456")
			},
			wantError: biddingerrors.ErrNotFound,
		},
		{
			name: "wrong_secret_burns_token",
			run: func(t *testing.T, v *Vault, _ *fakeClock) error {
				secret, err := v.Issue(ctx, "user1")
				require.NoError(t, err)
				err = v.Consume(ctx, "user1", "not-it")
				require.ErrorIs(t, err, biddingerrors.ErrUnauthorized)
				return v.Consume(ctx, "user1", secret)
			},
			wantError: biddingerrors.ErrNotFound,
		},
		{
			name: "expired_but_matching",
			run: func(t *testing.T, v *Vault, clock *fakeClock) error {
				secret, err := v.Issue(ctx, "user1")
				require.NoError(t, err)
				clock.Advance(time.Hour + time.Second)
				return v.Consume(ctx, "user1", secret)
			},
			wantError: biddingerrors.ErrTokenExpired,
		},
		{
			name: "expiry_instant_is_expired",
			run: func(t *testing.T, v *Vault, clock *fakeClock) error {
				secret, err := v.Issue(ctx, "user1")
				require.NoError(t, err)
				clock.Advance(time.Hour)
				return v.Consume(ctx, "user1", secret)
			},
			wantError: biddingerrors.ErrUnauthorized,
		},
		{
			name: "subjects_are_independent",
			run: func(t *testing.T, v *Vault, _ *fakeClock) error {
				_, err := v.Issue(ctx, "user1")
				require.NoError(t, err)
				secret, err := v.Issue(ctx, "user2")
				require.NoError(t, err)
				return v.Consume(ctx, "user2", secret)
			},
		},
		{
			name: "empty_subject",
			run: func(t *testing.T, v *Vault, _ *fakeClock) error {
				_, err := v.Issue(ctx, "")
				return err
			},
			wantError: biddingerrors.ErrValidation,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			vault, clock := newTestVault(repository.NewMemoryRepo())
			err := tc.run(t, vault, clock)
			if tc.wantError != nil {
				require.ErrorIs(t, err, tc.wantError)
				return
			}
			require.NoError(t, err)
		})
	}
}

// issue for U; wait past expiry; consume fails; issue again; consume with the new secret succeeds and deletes the record
func TestVault_ExpiryScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repository.NewMemoryRepo()
	vault, clock := newTestVault(store)

	old, err := vault.Issue(ctx, "U")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	require.ErrorIs(t, vault.Consume(ctx, "U", old), biddingerrors.ErrUnauthorized)

	fresh, err := vault.Issue(ctx, "U")
	require.NoError(t, err)
	require.NoError(t, vault.Consume(ctx, "U", fresh))

	_, err = store.TakeToken(ctx, PurposeVerifyEmail, "U")
	require.ErrorIs(t, err, biddingerrors.ErrTokenNotFound)
}

func TestVault_ReissueReplacesLiveToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repository.NewMemoryRepo()
	vault, _ := newTestVault(store)

	_, err := vault.Issue(ctx, "user1")
	require.NoError(t, err)
	second, err := vault.Issue(ctx, "user1")
	require.NoError(t, err)

	rec, err := store.TakeToken(ctx, PurposeVerifyEmail, "user1")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(rec.Hash), []byte(second)))
	require.NotEqual(t, second, rec.Hash, "only the hash is stored")

	_, err = store.TakeToken(ctx, PurposeVerifyEmail, "user1")
	require.ErrorIs(t, err, biddingerrors.ErrTokenNotFound, "one live record per subject")
}

func TestVault_PurposesDoNotCollide(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repository.NewMemoryRepo()
	verify := New(PurposeVerifyEmail, store, 0, WithHashCost(bcrypt.MinCost))
	reset := New(PurposeResetPassword, store, 0, WithHashCost(bcrypt.MinCost))

	vs, err := verify.Issue(ctx, "user1")
	require.NoError(t, err)
	rs, err := reset.Issue(ctx, "user1")
	require.NoError(t, err)

	require.NoError(t, reset.Consume(ctx, "user1", rs))
	require.NoError(t, verify.Consume(ctx, "user1", vs))
}

func TestVault_StoreFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	mockTokens := repository.NewMockTokenDB(ctrl)
	vault, clock := newTestVault(mockTokens)

	mockTokens.EXPECT().PutToken(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, rec models.TokenRecord) error {
		require.Equal(t, PurposeVerifyEmail, rec.Purpose)
		require.Equal(t, clock.Now().Add(time.Hour), rec.ExpiresAt)
		return biddingerrors.ErrTimeout
	})
	_, err := vault.Issue(ctx, "user1")
	require.ErrorIs(t, err, biddingerrors.ErrInternal)
	require.True(t, biddingerrors.Retryable(err))

	mockTokens.EXPECT().TakeToken(ctx, PurposeVerifyEmail, "user1").Return(models.TokenRecord{}, errors.New("redis down"))
	err = vault.Consume(ctx, "user1", "000000")
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis down")

	mockTokens.EXPECT().TakeToken(ctx, PurposeVerifyEmail, "user1").Return(models.TokenRecord{Hash: "not-a-bcrypt-hash"}, nil)
	err = vault.Consume(ctx, "user1", "000000")
	require.ErrorIs(t, err, biddingerrors.ErrInternal)
}
