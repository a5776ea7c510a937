package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const internalMessage = "internal server error"

// ValidationError reports malformed or missing input, keyed by field.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Message: "validation failed", Fields: map[string]string{field: message}}
}

// ErrorHandler renders every error as a JSON body with a message. Errors that
// are neither validation nor fiber errors are logged and hidden behind a
// generic 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var verr *ValidationError
		if errors.As(err, &verr) {
			body := fiber.Map{"message": verr.Message}
			if len(verr.Fields) > 0 {
				body["errors"] = verr.Fields
			}
			return c.Status(http.StatusBadRequest).JSON(body)
		}

		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			return c.Status(ferr.Code).JSON(fiber.Map{"message": ferr.Message})
		}

		if logger != nil {
			logger.Error("unhandled request error",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("error", err),
			)
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"message": internalMessage})
	}
}
