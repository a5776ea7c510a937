package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PINLength is the exact length of an admin-assigned PIN.
const PINLength = 5

// ErrInvalidPINFormat is returned when an admin assigns a malformed PIN.
var ErrInvalidPINFormat = errors.New("PIN must be exactly 5 digits")

// Service owns user records and their credentials.
type Service struct {
	repo   Repository
	hasher *Hasher
}

// NewService creates a new identity service.
func NewService(repo Repository, hasher *Hasher) *Service {
	if hasher == nil {
		hasher = NewHasher(DefaultHashCost)
	}
	return &Service{repo: repo, hasher: hasher}
}

// CreateUser registers an applicant at step1 with a hashed password.
func (s *Service) CreateUser(ctx context.Context, reg Registration) (User, error) {
	email := NormalizeEmail(reg.Email)
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return User{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	user := User{
		ID:            uuid.New().String(),
		Name:          reg.Name,
		Email:         email,
		Phone:         reg.Phone,
		Country:       reg.Country,
		PasswordHash:  hash,
		Status:        StatusStep1,
		ApprovedSteps: []Step{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// FindByEmail looks a user up by normalized email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// FindByID looks a user up by identifier.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Search returns users matching the normalized email.
func (s *Service) Search(ctx context.Context, email string) ([]User, error) {
	return s.repo.SearchByEmail(ctx, email)
}

// Save persists a modified user, failing with ErrVersionConflict when the
// record changed since it was read.
func (s *Service) Save(ctx context.Context, user User) (User, error) {
	return s.repo.Update(ctx, user)
}

// VerifyPassword checks attempt against the stored credential. A matching
// legacy plaintext credential is re-hashed and written back; the returned user
// reflects the stored record.
func (s *Service) VerifyPassword(ctx context.Context, user User, attempt string) (User, bool, error) {
	if err := s.hasher.Compare(user.PasswordHash, attempt); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return user, false, nil
		}
		return user, false, err
	}
	if IsHash(user.PasswordHash) {
		return user, true, nil
	}

	hash, err := s.hasher.Hash(attempt)
	if errors.Is(err, ErrPasswordTooLong) {
		// bcrypt cannot hold this legacy secret; keep it and accept the match
		return user, true, nil
	}
	if err != nil {
		return user, false, err
	}
	user.PasswordHash = hash
	updated, err := s.repo.Update(ctx, user)
	if errors.Is(err, ErrVersionConflict) {
		// a concurrent writer got there first; the match itself still stands
		return user, true, nil
	}
	if err != nil {
		return user, false, err
	}
	return updated, true, nil
}

// SetPin overwrites the user's PIN unconditionally.
func (s *Service) SetPin(ctx context.Context, userID, pin string) (User, error) {
	if !validPIN(pin) {
		return User{}, ErrInvalidPINFormat
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	user.PIN = pin
	return s.repo.Update(ctx, user)
}

func validPIN(pin string) bool {
	if len(pin) != PINLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
