package httpx

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
)

// Bind decodes the JSON body into dst and runs its Validate method when it has one.
func Bind(c *fiber.Ctx, dst any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return &ValidationError{Message: "invalid request body"}
		}
	}
	v, ok := dst.(validation.Validatable)
	if !ok {
		return nil
	}
	return FromValidation(v.Validate())
}

// FromValidation converts ozzo validation errors into a ValidationError.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for field, ferr := range verrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
		return &ValidationError{Message: "validation failed", Fields: fields}
	}
	return err
}
