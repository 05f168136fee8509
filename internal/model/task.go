package model

import (
	"time"
	"unicode/utf8"
)

// Task status values.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusArchived   = "archived"
)

// Task priority values.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var taskStatuses = map[string]bool{
	StatusTodo:       true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusArchived:   true,
}

var taskPriorities = map[string]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

// Task is a single to-do item.
type Task struct {
	Meta

	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Tags        []string   `json:"tags,omitempty"`

	// CompletedAt is set iff Status == completed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Order supports manual ordering in list views.
	Order int `json:"order"`
}

// NewTask creates a task with fresh metadata and defaulted fields.
func NewTask(title string) *Task {
	return &Task{
		Meta:     NewMeta(),
		Title:    title,
		Category: "general",
		Priority: PriorityMedium,
		Status:   StatusTodo,
		Tags:     []string{},
	}
}

// EntityType implements Record.
func (t *Task) EntityType() EntityType { return EntityTask }

// Validate implements Record.
func (t *Task) Validate() error {
	if err := t.Meta.validate(); err != nil {
		return err
	}
	if t.Title == "" {
		return validationErrorf("title", "title is required")
	}
	if n := utf8.RuneCountInString(t.Title); n > 200 {
		return validationErrorf("title", "title must be 200 characters or less (got %d)", n)
	}
	if n := utf8.RuneCountInString(t.Description); n > 2000 {
		return validationErrorf("description", "description must be 2000 characters or less (got %d)", n)
	}
	if !taskPriorities[t.Priority] {
		return validationErrorf("priority", "invalid priority %q", t.Priority)
	}
	if !taskStatuses[t.Status] {
		return validationErrorf("status", "invalid status %q", t.Status)
	}
	if t.Status == StatusCompleted && t.CompletedAt == nil {
		return validationErrorf("completed_at", "completed_at is required for completed tasks")
	}
	if t.Status != StatusCompleted && t.CompletedAt != nil {
		return validationErrorf("completed_at", "completed_at must be empty unless status is completed")
	}
	return nil
}

// SetStatus transitions the task to status, maintaining CompletedAt:
// it is stamped when the task becomes completed and cleared otherwise.
// The task is touched on every call.
func (t *Task) SetStatus(status string) error {
	if !taskStatuses[status] {
		return validationErrorf("status", "invalid status %q", status)
	}
	t.Status = status
	if status == StatusCompleted {
		if t.CompletedAt == nil {
			now := time.Now().UTC()
			t.CompletedAt = &now
		}
	} else {
		t.CompletedAt = nil
	}
	t.Meta.Touch()
	return nil
}

// Complete marks the task completed.
func (t *Task) Complete() error { return t.SetStatus(StatusCompleted) }

// Archive marks the task archived.
func (t *Task) Archive() error { return t.SetStatus(StatusArchived) }

// AddTag appends tag if not already present, touching the task on change.
func (t *Task) AddTag(tag string) {
	if t.HasTag(tag) {
		return
	}
	t.Tags = append(t.Tags, tag)
	t.Meta.Touch()
}

// RemoveTag deletes tag if present, touching the task on change.
func (t *Task) RemoveTag(tag string) {
	for i, existing := range t.Tags {
		if existing == tag {
			t.Tags = append(t.Tags[:i], t.Tags[i+1:]...)
			t.Meta.Touch()
			return
		}
	}
}

// HasTag reports whether the task carries tag.
func (t *Task) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// IsOverdue reports whether the deadline has passed for an incomplete task.
func (t *Task) IsOverdue() bool {
	if t.Deadline == nil || t.Status == StatusCompleted {
		return false
	}
	return t.Deadline.Before(time.Now())
}

// IsDueSoon reports whether the deadline falls within the next daysAhead days.
func (t *Task) IsDueSoon(daysAhead int) bool {
	if t.Deadline == nil || t.Status == StatusCompleted {
		return false
	}
	now := time.Now()
	horizon := now.AddDate(0, 0, daysAhead)
	return !t.Deadline.Before(now) && !t.Deadline.After(horizon)
}
