package entity

import "time"

// ApprovalLineTemplate is a reusable, versioned definition of an approval
// line's shape. The header is immutable apart from IsActive and the current
// version pointer, which only CreateVersion moves. Historical documents
// reference a specific version, never the template itself.
type ApprovalLineTemplate struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Type             string    `json:"type"`
	IsActive         bool      `json:"is_active"`
	CurrentVersionID int64     `json:"current_version_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TemplateVersion is one immutable revision of a template's step list.
// Versions are append-only: creating a new version never mutates a prior one.
type TemplateVersion struct {
	ID            int64            `json:"id"`
	TemplateID    int64            `json:"template_id"`
	VersionNumber int              `json:"version_number"`
	Steps         []StepDefinition `json:"steps"`
	CreatedAt     time.Time        `json:"created_at"`
}

// StepDefinition is one step of a template version. StepOrder values within a
// version are 1-based, unique and contiguous.
type StepDefinition struct {
	ID         int64        `json:"id"`
	VersionID  int64        `json:"version_id"`
	StepOrder  int          `json:"step_order"`
	StepType   string       `json:"step_type"`
	Rule       AssigneeRule `json:"rule"`
	IsRequired bool         `json:"is_required"`
}
