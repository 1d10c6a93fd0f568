package domain

import (
	"fmt"
	"strings"
)

// Category is a coarse display label assigned to a tracker domain.
type Category string

const (
	CategoryAnalytics   Category = "analytics"
	CategoryAdvertising Category = "advertising"
	CategorySocial      Category = "social"
	CategoryOther       Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryAnalytics, CategoryAdvertising, CategorySocial, CategoryOther}

// String returns the label.
func (c Category) String() string { return string(c) }

// Valid reports whether c is one of the known labels.
func (c Category) Valid() bool {
	switch c {
	case CategoryAnalytics, CategoryAdvertising, CategorySocial, CategoryOther:
		return true
	default:
		return false
	}
}

// ParseCategory converts a label into a Category (case-insensitive).
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported category: %q", s)
	}
	return c, nil
}

// CategoryEntry is one row of the hostname→category table.
type CategoryEntry struct {
	Host     string
	Category Category
}
