package onboarding

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/olympic-platform/onboarding/internal/activity"
	"github.com/olympic-platform/onboarding/internal/identity"
	"github.com/olympic-platform/onboarding/internal/notification"
)

// ErrInvalidPIN is returned when a submitted PIN does not match the stored one.
// Attempts are not counted.
var ErrInvalidPIN = errors.New("invalid PIN")

// Service drives accounts through the onboarding steps. Every transition is a
// read-modify-write guarded by the record version; history and notifications
// are written after the record is persisted and never undo it.
type Service struct {
	users    *identity.Service
	history  activity.Log
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService wires the onboarding flow.
func NewService(users *identity.Service, history activity.Log, notifier notification.Notifier, logger *slog.Logger) *Service {
	if history == nil {
		history = activity.NewInMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, history: history, notifier: notifier, logger: logger}
}

// Register creates an applicant at step1.
func (s *Service) Register(ctx context.Context, reg identity.Registration) (identity.User, error) {
	outcome, err := Transition("", ActionRegister)
	if err != nil {
		return identity.User{}, err
	}
	user, err := s.users.CreateUser(ctx, reg)
	if err != nil {
		return identity.User{}, err
	}
	s.record(ctx, user.ID, activity.ActorApplicant, ActionRegister, "", outcome.To, "")
	s.notify(ctx, notification.Message{
		Kind:    notification.KindUserRegistered,
		Subject: "New User Registration",
		Body: fmt.Sprintf("A new user has registered:\nName: %s\nEmail: %s\nPhone: %s\nCountry: %s",
			user.Name, user.Email, user.Phone, user.Country),
	})
	return user, nil
}

// VerifyPin moves the applicant to step2 when pin equals the admin-assigned PIN.
func (s *Service) VerifyPin(ctx context.Context, userID, pin string) (identity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return identity.User{}, err
	}
	if user.PIN == "" || subtle.ConstantTimeCompare([]byte(user.PIN), []byte(pin)) != 1 {
		return identity.User{}, ErrInvalidPIN
	}
	updated, err := s.apply(ctx, user, ActionSubmitPIN, activity.ActorApplicant, nil)
	if err != nil {
		return identity.User{}, err
	}
	s.notify(ctx, notification.Message{
		Kind:    notification.KindPINVerified,
		Subject: "PIN Verified",
		Body:    fmt.Sprintf("User verified PIN:\nID: %s\nEmail: %s", updated.ID, updated.Email),
	})
	return updated, nil
}

// SelectPlan stores the requested plan; status stays at step2 until the admin approves.
func (s *Service) SelectPlan(ctx context.Context, userID, plan string) (identity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return identity.User{}, err
	}
	updated, err := s.apply(ctx, user, ActionSelectPlan, activity.ActorApplicant, func(u *identity.User) {
		u.Plan = plan
	})
	if err != nil {
		return identity.User{}, err
	}
	s.notify(ctx, notification.Message{
		Kind:    notification.KindPlanRequested,
		Subject: "Plan Selection Request",
		Body:    fmt.Sprintf("User requested plan:\nID: %s\nEmail: %s\nPlan: %s", updated.ID, updated.Email, plan),
	})
	return updated, nil
}

// CompleteIDCard records the ID-card receipt request; status stays at step3.
func (s *Service) CompleteIDCard(ctx context.Context, userID string) (identity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return identity.User{}, err
	}
	outcome, err := Transition(user.Status, ActionSubmitIDCard)
	if err != nil {
		return identity.User{}, err
	}
	s.record(ctx, user.ID, activity.ActorApplicant, ActionSubmitIDCard, user.Status, outcome.To, "")
	s.notify(ctx, notification.Message{
		Kind:    notification.KindIDCardRequested,
		Subject: "ID Card Request",
		Body:    fmt.Sprintf("User submitted ID card receipt:\nID: %s\nEmail: %s", user.ID, user.Email),
	})
	return user, nil
}

// Approve applies the admin approval for a step identifier.
func (s *Service) Approve(ctx context.Context, userID, rawStep string) (identity.User, identity.Step, error) {
	step, err := identity.ParseStep(rawStep)
	if err != nil {
		return identity.User{}, "", err
	}
	action, err := ApprovalFor(step)
	if err != nil {
		return identity.User{}, "", err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return identity.User{}, "", err
	}
	updated, err := s.apply(ctx, user, action, activity.ActorAdmin, nil)
	if err != nil {
		return identity.User{}, "", err
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindStepApproved,
		Destination: updated.Email,
		Subject:     "Onboarding step approved",
		Body:        fmt.Sprintf("Your %s step has been approved. Current status: %s", step, updated.Status),
	})
	return updated, step, nil
}

// SetPin assigns the applicant's PIN. Status does not change.
func (s *Service) SetPin(ctx context.Context, userID, pin string) (identity.User, error) {
	updated, err := s.users.SetPin(ctx, userID, pin)
	if err != nil {
		return identity.User{}, err
	}
	s.record(ctx, updated.ID, activity.ActorAdmin, ActionSetPIN, updated.Status, updated.Status, "")
	return updated, nil
}

// Profile returns the live record for userID.
func (s *Service) Profile(ctx context.Context, userID string) (identity.User, error) {
	return s.users.FindByID(ctx, userID)
}

// ListUsers returns every applicant.
func (s *Service) ListUsers(ctx context.Context) ([]identity.User, error) {
	return s.users.List(ctx)
}

// SearchUsers returns applicants whose normalized email matches.
func (s *Service) SearchUsers(ctx context.Context, email string) ([]identity.User, error) {
	return s.users.Search(ctx, email)
}

// History returns the recorded actions for an existing user.
func (s *Service) History(ctx context.Context, userID string) ([]activity.Record, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.history.ForUser(ctx, userID)
}

func (s *Service) apply(ctx context.Context, user identity.User, action Action, actor string, mutate func(*identity.User)) (identity.User, error) {
	from := user.Status
	outcome, err := Transition(from, action)
	if err != nil {
		return identity.User{}, err
	}
	user.Status = outcome.To
	if outcome.Step != "" {
		user.ApproveStep(outcome.Step)
	}
	if mutate != nil {
		mutate(&user)
	}

	saved, err := s.users.Save(ctx, user)
	if err != nil {
		return identity.User{}, err
	}

	s.logger.Info("onboarding transition",
		slog.String("user_id", saved.ID),
		slog.String("action", string(action)),
		slog.String("actor", actor),
		slog.String("from", string(from)),
		slog.String("to", string(saved.Status)),
	)
	s.record(ctx, saved.ID, actor, action, from, saved.Status, outcome.Step)
	return saved, nil
}

func (s *Service) record(ctx context.Context, userID, actor string, action Action, from, to identity.Status, step identity.Step) {
	err := s.history.Append(ctx, activity.Record{
		UserID:     userID,
		Actor:      actor,
		Action:     string(action),
		FromStatus: string(from),
		ToStatus:   string(to),
		Step:       string(step),
	})
	if err != nil {
		s.logger.Warn("activity append failed", slog.String("user_id", userID), slog.String("action", string(action)), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification enqueue failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
