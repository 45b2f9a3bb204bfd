// Package validation checks user-supplied identifiers and submission answers before they
// reach the database. Checks are built on go-playground/validator tags, with a few custom
// tags for the platform's identifier formats.
package validation

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	slugPattern      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	eventCodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	fieldKeyPattern  = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	register := func(tag string, re *regexp.Regexp) {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	}
	register("slug", slugPattern)
	register("event_code", eventCodePattern)
	register("field_key", fieldKeyPattern)
	return v
}

// Struct validates a request struct using its `validate` tags.
func Struct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return describe(err)
	}
	return nil
}

// ValidateEmail checks an email address
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,max=254,email"); err != nil {
		return fmt.Errorf("invalid email address: %q", email)
	}
	return nil
}

// ValidateSlug checks an organizer slug: lowercase words joined by single hyphens
func ValidateSlug(slug string) error {
	if err := validate.Var(slug, "required,max=100,slug"); err != nil {
		return fmt.Errorf("invalid slug %q: use lowercase letters, digits and single hyphens", slug)
	}
	return nil
}

// ValidateEventCode checks an event business code
func ValidateEventCode(code string) error {
	if err := validate.Var(code, "required,max=50,event_code"); err != nil {
		return fmt.Errorf("invalid event code %q: use letters, digits, '-' or '_'", code)
	}
	return nil
}

// ValidateFieldKey checks a form field key
func ValidateFieldKey(key string) error {
	if err := validate.Var(key, "required,max=100,field_key"); err != nil {
		return fmt.Errorf("invalid field_key %q: use lowercase letters, digits and '_', starting with a letter", key)
	}
	return nil
}

// NormalizeUUID parses a UUID in any of the accepted spellings and returns its canonical
// lowercase form, the only form stored in the database.
func NormalizeUUID(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q", s)
	}
	return u.String(), nil
}

// describe flattens validator errors into one readable message.
func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Errorf("field %s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("field %s failed %s", fe.Field(), fe.Tag())
}
