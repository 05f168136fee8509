// Package model provides the synchronizable record types for tasksync.
//
// Every record carries Meta: a client-generated UUID, creation and update
// timestamps, and a version counter used for last-write-wins conflict
// resolution. Touch is the single mutation point for version/updated_at,
// so the two always move together.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the kind of synchronizable record.
type EntityType string

const (
	EntityTask     EntityType = "task"
	EntityCategory EntityType = "category"
)

// Valid reports whether the entity type is one of the known kinds.
func (e EntityType) Valid() bool {
	return e == EntityTask || e == EntityCategory
}

// ValidationError reports a local data invariant violation.
// Records failing validation are rejected before reaching the sync queue.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// validationErrorf builds a ValidationError for the given field.
func validationErrorf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Meta holds the fields shared by all synchronizable records.
// It is embedded in each record type so the JSON encoding stays flat.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// RecordMeta returns the metadata itself. Promoted through embedding,
// it lets any record expose its shared fields without reflection.
func (m *Meta) RecordMeta() *Meta { return m }

// NewMeta returns metadata for a freshly created record: a new UUID,
// both timestamps set to now, and version 1.
func NewMeta() Meta {
	now := time.Now().UTC()
	return Meta{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// Touch refreshes UpdatedAt and increments Version.
// Call exactly once per logical mutation.
func (m *Meta) Touch() {
	m.UpdatedAt = time.Now().UTC()
	m.Version++
}

// validate checks the base metadata invariants.
func (m *Meta) validate() error {
	if m.ID == "" {
		return validationErrorf("id", "id is required")
	}
	if m.CreatedAt.IsZero() {
		return validationErrorf("created_at", "created_at is required")
	}
	if m.UpdatedAt.IsZero() {
		return validationErrorf("updated_at", "updated_at is required")
	}
	if m.Version < 1 {
		return validationErrorf("version", "version must be at least 1 (got %d)", m.Version)
	}
	return nil
}

// Record is implemented by all synchronizable record types.
type Record interface {
	// RecordMeta returns the shared metadata. Never nil.
	RecordMeta() *Meta

	// EntityType returns the record kind.
	EntityType() EntityType

	// Validate checks all field invariants.
	Validate() error
}

// Decode parses a JSON payload into the concrete record for entityType.
// The decoded record is validated before being returned.
func Decode(entityType EntityType, data []byte) (Record, error) {
	var rec Record
	switch entityType {
	case EntityTask:
		rec = &Task{}
	case EntityCategory:
		rec = &Category{}
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to parse %s record: %w", entityType, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s record: %w", entityType, err)
	}
	return rec, nil
}
