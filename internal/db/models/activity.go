// Package models - activity.go defines the activity catalog: activity types (a platform-wide
// taxonomy) and activity templates (reusable event blueprints with default form fields).
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ActivityType categorises events (e.g. "workshop", "marathon").
type ActivityType struct {
	BaseRecord
	Code        string  `json:"code" db:"code"`
	Name        string  `json:"name" db:"name"`
	Description *string `json:"description,omitempty" db:"description"`
	Config      JSONMap `json:"config" db:"config"`
}

// ActivityTemplate is a blueprint events can be instantiated from. A nil OrganizerUUID
// marks a global template visible to every organizer.
type ActivityTemplate struct {
	BaseRecord
	ActivityTypeUUID string           `json:"activity_type_uuid" db:"activity_type_uuid"`
	OrganizerUUID    *string          `json:"organizer_uuid,omitempty" db:"organizer_uuid"`
	Name             string           `json:"name" db:"name"`
	Description      *string          `json:"description,omitempty" db:"description"`
	DefaultFields    FieldDefinitions `json:"default_fields" db:"default_fields"`
	Config           JSONMap          `json:"config" db:"config"`
}

// FieldDefinition is the template-side description of an EventField.
type FieldDefinition struct {
	FieldKey        string     `json:"field_key"`
	Label           string     `json:"label"`
	FieldType       string     `json:"field_type"`
	IsRequired      bool       `json:"is_required"`
	Options         StringList `json:"options,omitempty"`
	ValidationRules JSONMap    `json:"validation_rules,omitempty"`
	SortOrder       int        `json:"sort_order"`
}

// FieldDefinitions is stored as a JSONB array.
type FieldDefinitions []FieldDefinition

// Value implements driver.Valuer.
func (f FieldDefinitions) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]FieldDefinition(f))
}

// Scan implements sql.Scanner.
func (f *FieldDefinitions) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*f = FieldDefinitions{}
		return nil
	}
	var out []FieldDefinition
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("failed to decode field definitions: %w", err)
	}
	*f = out
	return nil
}
