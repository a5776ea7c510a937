package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/olympic-platform/onboarding/internal/identity"
	"github.com/olympic-platform/onboarding/internal/notification"
)

// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service authenticates applicants and the shared admin identity.
type Service struct {
	users    *identity.Service
	tokens   *TokenIssuer
	admin    AdminCredentials
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService wires the login flow.
func NewService(users *identity.Service, tokens *TokenIssuer, admin AdminCredentials, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{users: users, tokens: tokens, admin: admin, notifier: notifier, logger: logger}
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Token     string
	Principal Principal
	User      identity.User
}

// Login accepts the admin pair or an applicant's credentials.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if s.admin.Match(email, password) {
		token, err := s.tokens.IssueAdmin()
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Token: token, Principal: Principal{Kind: KindAdmin}}, nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	user, ok, err := s.users.VerifyPassword(ctx, user, password)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.tokens.IssueApplicant(user)
	if err != nil {
		return LoginResult{}, err
	}
	s.notify(ctx, notification.Message{
		Kind:    notification.KindUserLogin,
		Subject: "User Login",
		Body:    fmt.Sprintf("User logged in:\nID: %s\nEmail: %s\nStatus: %s", user.ID, user.Email, user.Status),
	})
	return LoginResult{
		Token:     token,
		Principal: Principal{Kind: KindApplicant, UserID: user.ID, Status: user.Status},
		User:      user,
	}, nil
}

// AdminLogin only checks the shared admin pair.
func (s *Service) AdminLogin(_ context.Context, email, password string) (string, error) {
	if !s.admin.Match(email, password) {
		return "", ErrInvalidCredentials
	}
	return s.tokens.IssueAdmin()
}

// IssueFor mints an applicant token for a freshly registered user.
func (s *Service) IssueFor(user identity.User) (string, error) {
	return s.tokens.IssueApplicant(user)
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil && s.logger != nil {
		s.logger.Warn("notification enqueue failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
