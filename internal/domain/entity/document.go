package entity

import "time"

// Document is the unit of approval. It owns an ordered sequence of step
// snapshots created atomically at submission; while the document is DRAFT no
// snapshots exist, and once it leaves DRAFT the snapshot sequence is frozen
// for the document's lifetime.
type Document struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Status        string    `json:"status"`
	FormVersionID int64     `json:"form_version_id"`
	AuthorID      string    `json:"author_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StepSnapshot is the frozen, resolved instantiation of one template step for
// one document. StepOrder, StepType and ApproverID never change after
// creation; only Status, Comment, ResultData and ApprovedAt mutate.
type StepSnapshot struct {
	ID             int64        `json:"id"`
	DocumentID     int64        `json:"document_id"`
	StepOrder      int          `json:"step_order"`
	StepType       string       `json:"step_type"`
	ApproverID     string       `json:"approver_id"`
	ApproverName   string       `json:"approver_name"`
	DepartmentName string       `json:"department_name,omitempty"`
	PositionName   string       `json:"position_name,omitempty"`
	Rule           AssigneeRule `json:"rule"`
	IsRequired     bool         `json:"is_required"`
	Status         string       `json:"status"`
	Comment        string       `json:"comment,omitempty"`
	ResultData     string       `json:"result_data,omitempty"`
	ApprovedAt     *time.Time   `json:"approved_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Gating reports whether this snapshot participates in sequential gating.
// Reference steps are notified but never block advancement.
func (s *StepSnapshot) Gating() bool {
	return s.IsRequired && GatingStepType(s.StepType)
}
