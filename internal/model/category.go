package model

import (
	"regexp"
	"unicode/utf8"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Category groups tasks under a named label with display hints.
// Category names are unique across the store.
type Category struct {
	Meta

	Name        string `json:"name"`
	Color       string `json:"color"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewCategory creates a category with fresh metadata and a default color.
func NewCategory(name string) *Category {
	return &Category{
		Meta:  NewMeta(),
		Name:  name,
		Color: "#2196F3",
	}
}

// DefaultCategories returns the categories seeded into a fresh store.
func DefaultCategories() []*Category {
	defaults := []struct {
		name, color, icon, desc string
	}{
		{"general", "#2196F3", "folder", "General tasks"},
		{"work", "#FF9800", "briefcase", "Work-related tasks"},
		{"personal", "#4CAF50", "home", "Personal tasks"},
		{"shopping", "#E91E63", "cart", "Shopping lists"},
		{"health", "#00BCD4", "heart", "Health and fitness"},
		{"learning", "#9C27B0", "book", "Learning and education"},
	}

	categories := make([]*Category, 0, len(defaults))
	for _, d := range defaults {
		c := NewCategory(d.name)
		c.Color = d.color
		c.Icon = d.icon
		c.Description = d.desc
		categories = append(categories, c)
	}
	return categories
}

// EntityType implements Record.
func (c *Category) EntityType() EntityType { return EntityCategory }

// Validate implements Record.
func (c *Category) Validate() error {
	if err := c.Meta.validate(); err != nil {
		return err
	}
	if c.Name == "" {
		return validationErrorf("name", "name is required")
	}
	if n := utf8.RuneCountInString(c.Name); n > 50 {
		return validationErrorf("name", "name must be 50 characters or less (got %d)", n)
	}
	if n := utf8.RuneCountInString(c.Description); n > 200 {
		return validationErrorf("description", "description must be 200 characters or less (got %d)", n)
	}
	if !colorPattern.MatchString(c.Color) {
		return validationErrorf("color", "color must be a 6-digit hex code like #2196F3 (got %q)", c.Color)
	}
	return nil
}
