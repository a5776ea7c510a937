package onboarding

import (
	"errors"

	"github.com/olympic-platform/onboarding/internal/identity"
)

// Action is something an applicant or the admin does to an account.
type Action string

const (
	ActionRegister      Action = "register"
	ActionSetPIN        Action = "set_pin"
	ActionSubmitPIN     Action = "submit_pin"
	ActionSelectPlan    Action = "select_plan"
	ActionSubmitIDCard  Action = "submit_idcard"
	ActionApprovePIN    Action = "approve_pin"
	ActionApprovePlan   Action = "approve_plan"
	ActionApproveIDCard Action = "approve_idcard"
)

var (
	// ErrWrongStep is returned when the account is not at the stage the action requires.
	ErrWrongStep = errors.New("action not allowed at current onboarding step")
	// ErrUnknownAction is returned for actions outside the table.
	ErrUnknownAction = errors.New("unknown onboarding action")
)

// Outcome is the effect of applying an action to a status.
type Outcome struct {
	To identity.Status
	// Step is appended to the approved steps when non-empty.
	Step identity.Step
	// Pending marks applicant requests that wait for an admin approval.
	Pending bool
}

type rule struct {
	// from restricts the statuses the action applies to; nil means any.
	from    map[identity.Status]struct{}
	target  identity.Status
	step    identity.Step
	pending bool
}

func only(s identity.Status) map[identity.Status]struct{} {
	return map[identity.Status]struct{}{s: {}}
}

var rules = map[Action]rule{
	ActionSetPIN:        {},
	ActionSubmitPIN:     {target: identity.StatusStep2, step: identity.StepPIN},
	ActionSelectPlan:    {from: only(identity.StatusStep2), pending: true},
	ActionSubmitIDCard:  {from: only(identity.StatusStep3), pending: true},
	ActionApprovePIN:    {target: identity.StatusStep2, step: identity.StepPIN},
	ActionApprovePlan:   {target: identity.StatusStep3, step: identity.StepPlan},
	ActionApproveIDCard: {target: identity.StatusCompleted, step: identity.StepIDCard},
}

// Transition applies action to from. It is defined for every pair: pairs the
// table does not allow return ErrWrongStep. Status never moves backwards, so
// an approval whose target is behind the current status only records its step.
func Transition(from identity.Status, action Action) (Outcome, error) {
	if action == ActionRegister {
		if from != "" {
			return Outcome{}, ErrWrongStep
		}
		return Outcome{To: identity.StatusStep1}, nil
	}
	if !from.Valid() {
		return Outcome{}, identity.ErrUnknownStatus
	}

	r, ok := rules[action]
	if !ok {
		return Outcome{}, ErrUnknownAction
	}
	if r.from != nil {
		if _, allowed := r.from[from]; !allowed {
			return Outcome{}, ErrWrongStep
		}
	}

	to := from
	if r.target != "" && r.target.Rank() > from.Rank() {
		to = r.target
	}
	return Outcome{To: to, Step: r.step, Pending: r.pending}, nil
}

// ApprovalFor maps an approvable step to its admin action.
func ApprovalFor(step identity.Step) (Action, error) {
	switch step {
	case identity.StepPIN:
		return ActionApprovePIN, nil
	case identity.StepPlan:
		return ActionApprovePlan, nil
	case identity.StepIDCard:
		return ActionApproveIDCard, nil
	default:
		return "", identity.ErrUnknownStep
	}
}
