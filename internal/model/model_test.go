package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewMeta(t *testing.T) {
	m := NewMeta()

	if m.ID == "" {
		t.Error("expected generated ID")
	}
	if m.Version != 1 {
		t.Errorf("expected version 1, got %d", m.Version)
	}
	if m.CreatedAt.IsZero() || m.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestMetaIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		m := NewMeta()
		if seen[m.ID] {
			t.Fatalf("duplicate ID generated: %s", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestTouch(t *testing.T) {
	m := NewMeta()
	before := m.UpdatedAt

	time.Sleep(time.Millisecond)
	m.Touch()

	if m.Version != 2 {
		t.Errorf("expected version 2 after touch, got %d", m.Version)
	}
	if !m.UpdatedAt.After(before) {
		t.Error("expected UpdatedAt to advance with version")
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Task)
		wantErr bool
	}{
		{"valid", func(task *Task) {}, false},
		{"missing title", func(task *Task) { task.Title = "" }, true},
		{"title too long", func(task *Task) { task.Title = strings.Repeat("x", 201) }, true},
		{"title at limit", func(task *Task) { task.Title = strings.Repeat("x", 200) }, false},
		// Limits count characters, not bytes.
		{"multibyte title at limit", func(task *Task) { task.Title = strings.Repeat("ü", 200) }, false},
		{"multibyte title too long", func(task *Task) { task.Title = strings.Repeat("ü", 201) }, true},
		{"bad priority", func(task *Task) { task.Priority = "critical" }, true},
		{"bad status", func(task *Task) { task.Status = "done" }, true},
		{"version zero", func(task *Task) { task.Version = 0 }, true},
		{"completed without timestamp", func(task *Task) { task.Status = StatusCompleted }, true},
		{"timestamp without completed", func(task *Task) {
			now := time.Now()
			task.CompletedAt = &now
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewTask("Write tests")
			tt.mutate(task)

			err := task.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestTaskValidationErrorField(t *testing.T) {
	task := NewTask("")
	err := task.Validate()

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "title" {
		t.Errorf("expected field %q, got %q", "title", verr.Field)
	}
}

func TestSetStatusCompletedAt(t *testing.T) {
	task := NewTask("Ship release")

	if err := task.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if task.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set on completion")
	}
	if task.Version != 2 {
		t.Errorf("expected version 2 after completion, got %d", task.Version)
	}

	if err := task.SetStatus(StatusTodo); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if task.CompletedAt != nil {
		t.Error("expected CompletedAt cleared when leaving completed status")
	}
}

func TestSetStatusInvalid(t *testing.T) {
	task := NewTask("Ship release")
	if err := task.SetStatus("finished"); err == nil {
		t.Error("expected error for invalid status")
	}
	if task.Version != 1 {
		t.Errorf("version must not change on rejected transition, got %d", task.Version)
	}
}

func TestTags(t *testing.T) {
	task := NewTask("Tagged")

	task.AddTag("urgent")
	task.AddTag("urgent") // no-op
	if len(task.Tags) != 1 {
		t.Errorf("expected 1 tag, got %d", len(task.Tags))
	}
	if task.Version != 2 {
		t.Errorf("duplicate AddTag must not touch, version = %d", task.Version)
	}

	task.RemoveTag("urgent")
	if task.HasTag("urgent") {
		t.Error("expected tag removed")
	}
}

func TestDeadlineHelpers(t *testing.T) {
	task := NewTask("Due")

	past := time.Now().Add(-time.Hour)
	task.Deadline = &past
	if !task.IsOverdue() {
		t.Error("expected overdue for past deadline")
	}

	soon := time.Now().Add(24 * time.Hour)
	task.Deadline = &soon
	if task.IsOverdue() {
		t.Error("future deadline must not be overdue")
	}
	if !task.IsDueSoon(3) {
		t.Error("expected due soon within 3 days")
	}

	// Completed tasks are never overdue.
	task.Deadline = &past
	if err := task.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if task.IsOverdue() {
		t.Error("completed task must not be overdue")
	}
}

func TestCategoryValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Category)
		wantErr bool
	}{
		{"valid", func(c *Category) {}, false},
		{"missing name", func(c *Category) { c.Name = "" }, true},
		{"multibyte name at limit", func(c *Category) { c.Name = strings.Repeat("é", 50) }, false},
		{"multibyte name too long", func(c *Category) { c.Name = strings.Repeat("é", 51) }, true},
		{"bad color", func(c *Category) { c.Color = "blue" }, true},
		{"short hex", func(c *Category) { c.Color = "#FFF" }, true},
		{"lowercase hex ok", func(c *Category) { c.Color = "#ff9800" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCategory("work")
			tt.mutate(c)

			err := c.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDefaultCategories(t *testing.T) {
	categories := DefaultCategories()
	if len(categories) == 0 {
		t.Fatal("expected seeded categories")
	}
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			t.Errorf("default category %q invalid: %v", c.Name, err)
		}
	}
}

func TestDecode(t *testing.T) {
	task := NewTask("Round trip")
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	rec, err := Decode(EntityTask, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decoded, ok := rec.(*Task)
	if !ok {
		t.Fatalf("expected *Task, got %T", rec)
	}
	if decoded.ID != task.ID || decoded.Title != task.Title {
		t.Errorf("decoded task mismatch: %+v", decoded)
	}

	if _, err := Decode(EntityType("note"), data); err == nil {
		t.Error("expected error for unknown entity type")
	}
	if _, err := Decode(EntityTask, []byte(`{"title":""}`)); err == nil {
		t.Error("expected validation error for invalid payload")
	}
}
