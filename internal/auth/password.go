package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"auction-settlement/internal/biddingerrors"
)

// MinPasswordLen is the shortest password accepted at registration or reset
const MinPasswordLen = 8

// PasswordHasher hashes and checks passwords with bcrypt
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using cost, or bcrypt.DefaultCost when cost is 0
func NewPasswordHasher(cost int) PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return PasswordHasher{cost: cost}
}

// Hash validates the password length and returns its bcrypt hash
func (h PasswordHasher) Hash(password string) (string, error) {
	const op = "auth.Hash"

	if len(password) < MinPasswordLen {
		return "", fmt.Errorf("%s: %w - password must be at least %d characters", op, biddingerrors.ErrInvalidInput, MinPasswordLen)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// Compare returns ErrBadCredentials when password does not match hash
func (h PasswordHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return biddingerrors.ErrBadCredentials
	}
	if err != nil {
		return fmt.Errorf("auth.Compare: %w: %v", biddingerrors.ErrBadCredentials, err)
	}
	return nil
}
