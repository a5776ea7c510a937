package onboarding

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/olympic-platform/onboarding/internal/activity"
	"github.com/olympic-platform/onboarding/internal/auth"
	"github.com/olympic-platform/onboarding/internal/httpx"
	"github.com/olympic-platform/onboarding/internal/identity"
)

// Handler exposes the applicant and admin onboarding endpoints.
type Handler struct {
	svc    *Service
	logins *auth.Service
}

// NewHandler constructs an onboarding handler.
func NewHandler(svc *Service, logins *auth.Service) *Handler {
	return &Handler{svc: svc, logins: logins}
}

type userView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Country       string          `json:"country"`
	Status        identity.Status `json:"status"`
	Plan          string          `json:"plan,omitempty"`
	ApprovedSteps []identity.Step `json:"approvedSteps"`
	PIN           string          `json:"pin,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// newUserView never carries the password credential; the PIN is only shown to the admin.
func newUserView(u identity.User, withPIN bool) userView {
	steps := u.ApprovedSteps
	if steps == nil {
		steps = []identity.Step{}
	}
	v := userView{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		Country:       u.Country,
		Status:        u.Status,
		Plan:          u.Plan,
		ApprovedSteps: steps,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	if withPIN {
		v.PIN = u.PIN
	}
	return v
}

func newUserViews(users []identity.User) []userView {
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, newUserView(u, true))
	}
	return out
}

// Register creates an applicant and returns an applicant token.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	phone, err := normalizePhone(req.Phone, req.Country)
	if err != nil {
		return httpx.Invalid("phone", err.Error())
	}
	user, err := h.svc.Register(c.UserContext(), identity.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    phone,
		Country:  req.Country,
		Password: req.Password,
	})
	if err != nil {
		return httpError(err)
	}
	token, err := h.logins.IssueFor(user)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"token": token, "status": user.Status})
}

// VerifyPin checks the submitted PIN for the calling applicant.
func (h *Handler) VerifyPin(c *fiber.Ctx) error {
	uid, err := applicantID(c)
	if err != nil {
		return err
	}
	var req verifyPinRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.svc.VerifyPin(c.UserContext(), uid, req.PIN)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"message": "PIN verified", "status": user.Status})
}

// SelectPlan records the applicant's plan request.
func (h *Handler) SelectPlan(c *fiber.Ctx) error {
	uid, err := applicantID(c)
	if err != nil {
		return err
	}
	var req selectPlanRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.svc.SelectPlan(c.UserContext(), uid, req.Plan)
	if err != nil {
		if errors.Is(err, ErrWrongStep) {
			return fiber.NewError(http.StatusForbidden, "Not authorized or PIN not verified")
		}
		return httpError(err)
	}
	return c.JSON(fiber.Map{"message": "Plan request sent. Await admin approval.", "status": user.Status})
}

// CompleteIDCard records the applicant's ID-card receipt request.
func (h *Handler) CompleteIDCard(c *fiber.Ctx) error {
	uid, err := applicantID(c)
	if err != nil {
		return err
	}
	user, err := h.svc.CompleteIDCard(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ErrWrongStep) {
			return fiber.NewError(http.StatusForbidden, "Not authorized or plan not approved")
		}
		return httpError(err)
	}
	return c.JSON(fiber.Map{"message": "ID card request sent. Await admin approval.", "status": user.Status})
}

// Profile returns the calling applicant's live record.
func (h *Handler) Profile(c *fiber.Ctx) error {
	uid, err := applicantID(c)
	if err != nil {
		return err
	}
	user, err := h.svc.Profile(c.UserContext(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"user": newUserView(user, false)})
}

// ListUsers returns all applicants.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	users, err := h.svc.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(newUserViews(users))
}

// SearchUsers returns applicants matching the email query parameter.
func (h *Handler) SearchUsers(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return httpx.Invalid("email", "cannot be blank")
	}
	users, err := h.svc.SearchUsers(c.UserContext(), email)
	if err != nil {
		return err
	}
	return c.JSON(newUserViews(users))
}

// Approve applies an admin approval for a step.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req approveRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, step, err := h.svc.Approve(c.UserContext(), req.UserID, req.Step)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"message": fmt.Sprintf("Approved %s", step), "status": user.Status})
}

// SetPin assigns a PIN to an applicant.
func (h *Handler) SetPin(c *fiber.Ctx) error {
	var req setPinRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if _, err := h.svc.SetPin(c.UserContext(), req.UserID, req.PIN); err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"message": "PIN set"})
}

type activityView struct {
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	FromStatus string    `json:"fromStatus,omitempty"`
	ToStatus   string    `json:"toStatus,omitempty"`
	Step       string    `json:"step,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// History returns the recorded onboarding actions of a user.
func (h *Handler) History(c *fiber.Ctx) error {
	records, err := h.svc.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	out := make([]activityView, 0, len(records))
	for _, r := range records {
		out = append(out, toActivityView(r))
	}
	return c.JSON(out)
}

func toActivityView(r activity.Record) activityView {
	return activityView{
		Action:     r.Action,
		Actor:      r.Actor,
		FromStatus: r.FromStatus,
		ToStatus:   r.ToStatus,
		Step:       r.Step,
		OccurredAt: r.OccurredAt,
	}
}

func applicantID(c *fiber.Ctx) (string, error) {
	p, ok := auth.PrincipalFrom(c)
	if !ok || p.UserID == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "No token provided")
	}
	return p.UserID, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, identity.ErrDuplicateEmail):
		return fiber.NewError(http.StatusConflict, "Email already in use")
	case errors.Is(err, identity.ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, "User not found")
	case errors.Is(err, ErrInvalidPIN):
		return fiber.NewError(http.StatusBadRequest, "Invalid PIN. Contact admin.")
	case errors.Is(err, ErrWrongStep):
		return fiber.NewError(http.StatusForbidden, "Not authorized at current onboarding step")
	case errors.Is(err, identity.ErrUnknownStep):
		return httpx.Invalid("step", "must be one of pin, plan, idcard")
	case errors.Is(err, identity.ErrPasswordTooLong):
		return httpx.Invalid("password", fmt.Sprintf("must be at most %d bytes", identity.MaxPasswordBytes))
	case errors.Is(err, identity.ErrInvalidPINFormat):
		return httpx.Invalid("pin", err.Error())
	case errors.Is(err, identity.ErrVersionConflict):
		return fiber.NewError(http.StatusConflict, "User was modified concurrently, resubmit the request")
	default:
		return err
	}
}
