package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category tells who authored a notification.
type Category string

const (
	CategorySystem   Category = "system"
	CategoryAcademic Category = "academic"
	CategoryAuto     Category = "auto"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategorySystem, CategoryAcademic, CategoryAuto:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// Content limits (in characters).
const (
	MaxTitleLength = 200
	MaxBodyLength  = 4000
)

// Notification is an alert or announcement addressed to a single user.
type Notification struct {
	ID          string
	RecipientID string
	SenderID    *string
	Category    Category
	Title       string
	Body        string
	ContextKey  *string
	RuleKind    *RuleKind
	Metadata    map[string]any
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.RecipientID) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(n.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if !n.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, n.Category)
	}
	if n.Category == CategoryAuto {
		if n.SenderID != nil {
			return fmt.Errorf("%w: auto notifications have no sender", ErrValidation)
		}
		if n.ContextKey == nil || strings.TrimSpace(*n.ContextKey) == "" {
			return fmt.Errorf("%w: auto notifications require a context key", ErrValidation)
		}
	}

	if l := len([]rune(n.Title)); l > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxTitleLength, l)
	}
	if l := len([]rune(n.Body)); l > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, l)
	}

	return nil
}

// BelongsTo reports whether the notification is addressed to recipientID.
func (n *Notification) BelongsTo(recipientID string) bool {
	return n != nil && n.RecipientID == strings.TrimSpace(recipientID)
}
