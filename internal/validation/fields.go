// fields.go validates submission answers against their EventField definition: JSON shape per
// field type, required-ness, select options, and the optional validation_rules of the field.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/event-registry/event-registry/internal/db/models"
)

// IsEmptyValue reports whether raw carries no answer (absent, null, "", or []).
func IsEmptyValue(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == `""` || s == "[]"
}

// ValidateFieldValue checks one answer for field. Empty answers are accepted for optional
// fields and rejected for required ones.
func ValidateFieldValue(field *models.EventField, raw json.RawMessage) error {
	if IsEmptyValue(raw) {
		if field.IsRequired {
			return fmt.Errorf("field %s is required", field.FieldKey)
		}
		return nil
	}

	switch field.FieldType {
	case models.FieldTypeText, models.FieldTypeTextarea:
		s, err := asString(field, raw)
		if err != nil {
			return err
		}
		return checkLength(field, s)
	case models.FieldTypeEmail:
		s, err := asString(field, raw)
		if err != nil {
			return err
		}
		if err := validate.Var(s, "email"); err != nil {
			return fmt.Errorf("field %s must be a valid email address", field.FieldKey)
		}
	case models.FieldTypeNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("field %s must be a number", field.FieldKey)
		}
		return checkRange(field, n)
	case models.FieldTypeSelect:
		s, err := asString(field, raw)
		if err != nil {
			return err
		}
		return checkOption(field, s)
	case models.FieldTypeMultiSelect:
		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			return fmt.Errorf("field %s must be a list of strings", field.FieldKey)
		}
		if err := validate.Var(values, "unique"); err != nil {
			return fmt.Errorf("field %s contains duplicate choices", field.FieldKey)
		}
		for _, v := range values {
			if err := checkOption(field, v); err != nil {
				return err
			}
		}
	case models.FieldTypeCheckbox:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("field %s must be true or false", field.FieldKey)
		}
		if field.IsRequired && !b {
			return fmt.Errorf("field %s must be checked", field.FieldKey)
		}
	case models.FieldTypeDate:
		s, err := asString(field, raw)
		if err != nil {
			return err
		}
		if err := validate.Var(s, "datetime=2006-01-02"); err != nil {
			return fmt.Errorf("field %s must be a date in YYYY-MM-DD format", field.FieldKey)
		}
	case models.FieldTypeFile:
		s, err := asString(field, raw)
		if err != nil {
			return err
		}
		if err := validate.Var(s, "uuid"); err != nil {
			return fmt.Errorf("field %s must reference a file record", field.FieldKey)
		}
	default:
		return fmt.Errorf("field %s has unsupported type %q", field.FieldKey, field.FieldType)
	}
	return nil
}

func asString(field *models.EventField, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("field %s must be a string", field.FieldKey)
	}
	return s, nil
}

func checkLength(field *models.EventField, s string) error {
	if n, ok := intRule(field, "min_length"); ok {
		if err := validate.Var(s, fmt.Sprintf("min=%d", n)); err != nil {
			return fmt.Errorf("field %s must be at least %d characters", field.FieldKey, n)
		}
	}
	if n, ok := intRule(field, "max_length"); ok {
		if err := validate.Var(s, fmt.Sprintf("max=%d", n)); err != nil {
			return fmt.Errorf("field %s must be at most %d characters", field.FieldKey, n)
		}
	}
	return nil
}

func checkRange(field *models.EventField, n float64) error {
	if min, ok := numberRule(field, "min"); ok && n < min {
		return fmt.Errorf("field %s must be at least %g", field.FieldKey, min)
	}
	if max, ok := numberRule(field, "max"); ok && n > max {
		return fmt.Errorf("field %s must be at most %g", field.FieldKey, max)
	}
	return nil
}

func checkOption(field *models.EventField, v string) error {
	for _, opt := range field.Options {
		if opt == v {
			return nil
		}
	}
	return fmt.Errorf("field %s: %q is not one of the allowed options", field.FieldKey, v)
}

func numberRule(field *models.EventField, name string) (float64, bool) {
	v, ok := field.ValidationRules[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func intRule(field *models.EventField, name string) (int, bool) {
	f, ok := numberRule(field, name)
	if !ok || f < 0 {
		return 0, false
	}
	return int(f), true
}
