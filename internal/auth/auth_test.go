package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"auction-settlement/internal/biddingerrors"
)

func TestJWTMaker_RoundTrip(t *testing.T) {
	t.Parallel()

	maker := NewJWTMaker("secret", time.Hour)
	token, err := maker.GenerateToken("user1", RoleBidder)
	require.NoError(t, err)

	claims, err := maker.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "user1", claims.Subject)
	require.Equal(t, RoleBidder, claims.Role)
}

func TestJWTMaker_ParseFailures(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	maker := NewJWTMaker("secret", time.Minute)
	maker.now = func() time.Time { return now }
	valid, err := maker.GenerateToken("user1", RoleAdmin)
	require.NoError(t, err)

	other := NewJWTMaker("other-secret", time.Minute)
	other.now = maker.now
	forged, err := other.GenerateToken("user1", RoleAdmin)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		at      time.Time
		wantErr error
	}{
		{name: "expired", token: valid, at: now.Add(2 * time.Minute), wantErr: biddingerrors.ErrTokenExpired},
		{name: "wrong_key", token: forged, at: now, wantErr: biddingerrors.ErrUnauthorized},
		{name: "alg_none", token: none, at: now, wantErr: biddingerrors.ErrUnauthorized},
		{name: "garbage", token: "not.a.token", at: now, wantErr: biddingerrors.ErrUnauthorized},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewJWTMaker("secret", time.Minute)
			m.now = func() time.Time { return tc.at }
			_, err := m.ParseToken(tc.token)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestJWTMaker_RejectsEmptyClaims(t *testing.T) {
	t.Parallel()

	_, err := NewJWTMaker("secret", time.Hour).GenerateToken("", RoleAdmin)
	require.ErrorIs(t, err, biddingerrors.ErrValidation)
}

func TestPasswordHasher(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	_, err := h.Hash("short")
	require.ErrorIs(t, err, biddingerrors.ErrValidation)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse", hash)

	require.NoError(t, h.Compare(hash, "correct horse"))
	require.ErrorIs(t, h.Compare(hash, "battery staple"), biddingerrors.ErrUnauthorized)
	require.ErrorIs(t, h.Compare("not-a-hash", "correct horse"), biddingerrors.ErrBadCredentials)
}
