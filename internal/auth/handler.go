package auth

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	"github.com/olympic-platform/onboarding/internal/httpx"
)

// Handler exposes the login endpoints.
type Handler struct {
	svc *Service
}

// NewHandler constructs a login handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login authenticates an applicant, or the admin when the shared pair matches.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return loginError(err)
	}
	if res.Principal.IsAdmin() {
		return c.Status(http.StatusOK).JSON(fiber.Map{"token": res.Token, "isAdmin": true})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"token": res.Token, "status": res.User.Status})
}

// AdminLogin authenticates the shared admin pair only.
func (h *Handler) AdminLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	token, err := h.svc.AdminLogin(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return fiber.NewError(http.StatusUnauthorized, "Invalid admin credentials")
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"token": token})
}

func loginError(err error) error {
	if errors.Is(err, ErrInvalidCredentials) {
		return fiber.NewError(http.StatusUnauthorized, "Invalid credentials")
	}
	return err
}
