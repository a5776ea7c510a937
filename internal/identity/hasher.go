package identity

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt cost used when none is configured.
const DefaultHashCost = 10

// MaxPasswordBytes is the longest secret bcrypt accepts.
const MaxPasswordBytes = 72

var (
	// ErrPasswordMismatch is returned when a password attempt does not verify.
	ErrPasswordMismatch = errors.New("password mismatch")
	// ErrPasswordTooLong is returned for secrets longer than MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

var hashMarkers = []string{"$2a$", "$2b$", "$2y$"}

// Hasher hashes and verifies secrets with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher clamps cost into the range bcrypt accepts.
func NewHasher(cost int) *Hasher {
	switch {
	case cost == 0:
		cost = DefaultHashCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt encoding of password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare checks attempt against a stored credential. Stored values without a
// bcrypt marker are legacy plaintext and compared in constant time.
func (h *Hasher) Compare(stored, attempt string) error {
	if !IsHash(stored) {
		if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(attempt)) != 1 {
			return ErrPasswordMismatch
		}
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(attempt)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}

// IsHash reports whether stored carries a bcrypt marker.
func IsHash(stored string) bool {
	for _, m := range hashMarkers {
		if strings.HasPrefix(stored, m) {
			return true
		}
	}
	return false
}
