package identity

import (
	"errors"
	"strings"
	"time"
)

// Status is the onboarding stage of an applicant.
type Status string

const (
	StatusStep1     Status = "step1"
	StatusStep2     Status = "step2"
	StatusStep3     Status = "step3"
	StatusCompleted Status = "completed"
)

var statusRank = map[Status]int{
	StatusStep1:     1,
	StatusStep2:     2,
	StatusStep3:     3,
	StatusCompleted: 4,
}

// Rank orders statuses; unknown values rank 0.
func (s Status) Rank() int {
	return statusRank[s]
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.Rank() > 0
}

// ParseStatus converts a stored status string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrUnknownStatus
	}
	return s, nil
}

// Step identifies an onboarding milestone recorded once approved.
type Step string

const (
	StepPIN    Step = "pin"
	StepPlan   Step = "plan"
	StepIDCard Step = "idcard"
)

// ErrUnknownStep is returned for step identifiers outside pin, plan and idcard.
var ErrUnknownStep = errors.New("unknown step")

// ErrUnknownStatus is returned when a stored status cannot be decoded.
var ErrUnknownStatus = errors.New("unknown status")

// ParseStep validates a step identifier supplied by a caller.
func ParseStep(raw string) (Step, error) {
	switch s := Step(strings.ToLower(strings.TrimSpace(raw))); s {
	case StepPIN, StepPlan, StepIDCard:
		return s, nil
	default:
		return "", ErrUnknownStep
	}
}

// User is an applicant record. Admins are not users.
type User struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Country       string
	PasswordHash  string
	PIN           string
	Status        Status
	Plan          string
	ApprovedSteps []Step
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasApproved reports whether step is already in the audit trail.
func (u User) HasApproved(step Step) bool {
	for _, s := range u.ApprovedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// ApproveStep appends step once. It returns false when it was already present.
func (u *User) ApproveStep(step Step) bool {
	if u.HasApproved(step) {
		return false
	}
	u.ApprovedSteps = append(u.ApprovedSteps, step)
	return true
}

// Registration carries the fields supplied when an applicant signs up.
type Registration struct {
	Name     string
	Email    string
	Phone    string
	Country  string
	Password string
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneUser(u User) User {
	if u.ApprovedSteps != nil {
		steps := make([]Step, len(u.ApprovedSteps))
		copy(steps, u.ApprovedSteps)
		u.ApprovedSteps = steps
	}
	return u
}
