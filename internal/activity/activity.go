package activity

import (
	"context"
	"time"
)

const (
	ActorAdmin     = "admin"
	ActorApplicant = "applicant"
)

// Record is one persisted onboarding action for a user.
type Record struct {
	ID         string
	UserID     string
	Actor      string
	Action     string
	FromStatus string
	ToStatus   string
	Step       string
	OccurredAt time.Time
}

// Log is an append-only history of onboarding actions.
type Log interface {
	Append(ctx context.Context, record Record) error
	ForUser(ctx context.Context, userID string) ([]Record, error)
}
