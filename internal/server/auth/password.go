package auth

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// Vault hashes and verifies passwords with bcrypt. It never persists
// anything and is safe for concurrent use.
type Vault struct {
	cost  int
	dummy []byte
}

// NewVault returns a Vault hashing at the given bcrypt cost.
func NewVault(cost int) (*Vault, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("gatekeeper-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrHashing, err)
	}

	return &Vault{cost: cost, dummy: dummy}, nil
}

func (v *Vault) Hash(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrHashing, err)
	}
	return string(h), nil
}

// Verify reports whether plaintext matches hash. A wrong password is not an
// error; a hash that is not bcrypt is.
func (v *Vault) Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", common.ErrMalformedHash, err)
	}
}

// DummyVerify spends the same work as Verify against a fixed hash, so a login
// for an unknown email costs as much as one with a wrong password.
func (v *Vault) DummyVerify(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(v.dummy, []byte(plaintext))
}
