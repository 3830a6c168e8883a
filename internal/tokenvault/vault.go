// Package tokenvault issues and consumes single-use, expiring secrets. Only a
// bcrypt hash of each secret is stored, keyed by (purpose, subject).
package tokenvault

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/models"
	"auction-settlement/internal/repository"
)

// Token purposes
const (
	PurposeVerifyEmail   = "verify-email"
	PurposeResetPassword = "reset-password"
)

// DefaultTTL is how long an issued secret stays valid
const DefaultTTL = time.Hour

const secretDigits = 6

var secretSpace = big.NewInt(1_000_000)

// Vault manages the tokens of one purpose
type Vault struct {
	purpose string
	store   repository.TokenDB
	ttl     time.Duration
	cost    int
	now     func() time.Time
}

// Option customizes a Vault
type Option func(*Vault)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithHashCost sets the bcrypt cost used for new secrets
func WithHashCost(cost int) Option {
	return func(v *Vault) { v.cost = cost }
}

// New creates a vault for purpose. A non-positive ttl selects DefaultTTL.
func New(purpose string, store repository.TokenDB, ttl time.Duration, opts ...Option) *Vault {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	v := &Vault{
		purpose: purpose,
		store:   store,
		ttl:     ttl,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Purpose returns the namespace this vault writes to
func (v *Vault) Purpose() string { return v.purpose }

// Issue generates a new secret for subject and stores its hash, replacing
// any live token. The plain secret is returned for delivery and never stored.
func (v *Vault) Issue(ctx context.Context, subject string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("tokenvault: issue %s: empty subject: %w", v.purpose, biddingerrors.ErrInvalidInput)
	}
	secret, err := newSecret()
	if err != nil {
		return "", fmt.Errorf("tokenvault: issue %s: %v: %w", v.purpose, err, biddingerrors.ErrInternal)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), v.cost)
	if err != nil {
		return "", fmt.Errorf("tokenvault: issue %s: hash: %v: %w", v.purpose, err, biddingerrors.ErrInternal)
	}

	now := v.now()
	err = v.store.PutToken(ctx, models.TokenRecord{
		Purpose:   v.purpose,
		Subject:   subject,
		Hash:      string(hash),
		ExpiresAt: now.Add(v.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("tokenvault: issue %s: %w", v.purpose, err)
	}
	return secret, nil
}

// Consume removes the live token for subject and checks secret against it.
// The token is gone after any comparison, whether it matched or not. A
// matching secret past its expiry fails with ErrTokenExpired.
func (v *Vault) Consume(ctx context.Context, subject, secret string) error {
	rec, err := v.store.TakeToken(ctx, v.purpose, subject)
	if err != nil {
		return fmt.Errorf("tokenvault: consume %s: %w", v.purpose, err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(rec.Hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("tokenvault: consume %s: %w", v.purpose, biddingerrors.ErrTokenMismatch)
	}
	if err != nil {
		return fmt.Errorf("tokenvault: consume %s: %v: %w", v.purpose, err, biddingerrors.ErrInternal)
	}
	if !v.now().Before(rec.ExpiresAt) {
		return fmt.Errorf("tokenvault: consume %s: %w", v.purpose, biddingerrors.ErrTokenExpired)
	}
	return nil
}

func newSecret() (string, error) {
	n, err := rand.Int(rand.Reader, secretSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", secretDigits, n.Int64()), nil
}
