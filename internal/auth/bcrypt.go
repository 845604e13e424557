package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore hashes and verifies account secrets. Secrets are never
// logged, serialized, or stored in plaintext; callers only ever hold digests.
type CredentialStore struct {
	cost int
}

// NewCredentialStore returns a store using the given bcrypt cost; values
// outside the bcrypt range fall back to the library default.
func NewCredentialStore(cost int) *CredentialStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialStore{cost: cost}
}

// Hash generates a one-way salted digest for the given secret.
func (s *CredentialStore) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	return string(h), err
}

// Verify validates the given cleartext secret against a stored digest.
func (s *CredentialStore) Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash produces a digest for an unguessable secret. Used for
// federated identities, which authenticate only via their provider.
func (s *CredentialStore) RandomPasswordHash() string {
	pwd := uuid.New()

	h, err := s.Hash(pwd.String())
	if err != nil {
		return s.RandomPasswordHash()
	}

	return h
}
