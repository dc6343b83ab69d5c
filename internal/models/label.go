package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Label is a globally unique, lower-cased issue tag
type Label struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewLabel creates a label, normalizing the name to lower case and the color to "#rrggbb"
func NewLabel(name, color string, description *string) *Label {
	if color == "" {
		color = "cccccc"
	}
	if !strings.HasPrefix(color, "#") {
		color = "#" + color
	}
	return &Label{
		ID:          uuid.New().String(),
		Name:        NormalizeLabelName(name),
		Color:       color,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// NormalizeLabelName returns the dedup key for a label name
func NormalizeLabelName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
