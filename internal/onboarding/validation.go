package onboarding

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"

	"github.com/olympic-platform/onboarding/internal/identity"
)

var errInvalidPhone = errors.New("must be a valid phone number (use +<country code> when country is not an ISO code)")

var errPasswordTooLong = fmt.Errorf("must be at most %d bytes", identity.MaxPasswordBytes)

func passwordBytesRule(value interface{}) error {
	s, _ := value.(string)
	if len(s) > identity.MaxPasswordBytes {
		return errPasswordTooLong
	}
	return nil
}

// normalizePhone parses phone with country as a region hint when it is a
// two-letter ISO code and returns the E.164 form.
func normalizePhone(phone, country string) (string, error) {
	region := ""
	if c := strings.TrimSpace(country); len(c) == 2 {
		region = strings.ToUpper(c)
	}
	num, err := phonenumbers.Parse(phone, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", errInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func phoneRule(country string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		_, err := normalizePhone(s, country)
		return err
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Country  string `json:"country"`
	Password string `json:"password"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Phone, validation.Required, validation.By(phoneRule(r.Country))),
		validation.Field(&r.Country, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 0), validation.By(passwordBytesRule)),
	)
}

type verifyPinRequest struct {
	PIN string `json:"pin"`
}

func (r verifyPinRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PIN, validation.Required),
	)
}

type selectPlanRequest struct {
	Plan string `json:"plan"`
}

func (r selectPlanRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Plan, validation.Required, validation.Length(1, 100)),
	)
}

type approveRequest struct {
	UserID string `json:"userId"`
	Step   string `json:"step"`
}

func (r approveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Step, validation.Required, validation.In("pin", "plan", "idcard").Error("must be one of pin, plan, idcard")),
	)
}

type setPinRequest struct {
	UserID string `json:"userId"`
	PIN    string `json:"pin"`
}

func (r setPinRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.PIN, validation.Required, validation.Length(5, 5), is.Digit),
	)
}
