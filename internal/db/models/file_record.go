// Package models - file_record.go defines FileRecord, pass-through metadata about an
// uploaded file. The bytes live elsewhere; only the reference is stored here.
package models

// FileRecord describes an uploaded file referenced by submission values
type FileRecord struct {
	BaseRecord
	OrganizerUUID *string `json:"organizer_uuid,omitempty" db:"organizer_uuid"`
	OriginalName  string  `json:"original_name" db:"original_name"`
	ContentType   string  `json:"content_type" db:"content_type"`
	SizeBytes     int64   `json:"size_bytes" db:"size_bytes"`
	StorageKey    string  `json:"storage_key" db:"storage_key"`
	SHA256        *string `json:"sha256,omitempty" db:"sha256"`
}
