package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
	"github.com/garyjia/approval-flow/internal/domain/workflow"
	"github.com/garyjia/approval-flow/internal/resolver"
	"go.uber.org/zap"
)

// CreateDocument allocates a new document in DRAFT. No snapshots exist until
// submission.
func (e *Engine) CreateDocument(ctx context.Context, formVersionID int64, title, content, authorID string) (*entity.Document, error) {
	if title == "" {
		return nil, apperr.Validationf("document title is required")
	}
	if authorID == "" {
		return nil, apperr.Validationf("author id is required")
	}

	doc := &entity.Document{
		Title:         title,
		Content:       content,
		Status:        entity.DocumentStatusDraft,
		FormVersionID: formVersionID,
		AuthorID:      authorID,
	}

	if err := e.documents.Create(nil, doc); err != nil {
		return nil, err
	}

	e.logger.Info("Document created",
		zap.Int64("document_id", doc.ID),
		zap.String("author_id", authorID))
	return doc, nil
}

// UpdateDocument edits title/content. Permitted only while DRAFT.
func (e *Engine) UpdateDocument(ctx context.Context, id int64, title, content string) (*entity.Document, error) {
	doc, err := e.documents.GetByID(id)
	if err != nil {
		return nil, err
	}
	if doc.Status != entity.DocumentStatusDraft {
		return nil, apperr.InvalidStatef("document %d is %s, only drafts can be edited", id, doc.Status)
	}
	if title == "" {
		title = doc.Title
	}

	if err := e.documents.UpdateFields(nil, id, title, content); err != nil {
		return nil, err
	}
	return e.documents.GetByID(id)
}

// DeleteDocument removes a draft. Submitted documents must be cancelled
// instead, preserving the snapshot audit trail.
func (e *Engine) DeleteDocument(ctx context.Context, id int64) error {
	doc, err := e.documents.GetByID(id)
	if err != nil {
		return err
	}
	if doc.Status != entity.DocumentStatusDraft {
		return apperr.InvalidStatef("document %d is %s, only drafts can be deleted", id, doc.Status)
	}
	return e.documents.Delete(nil, id)
}

// GetDocument returns a document with its ordered snapshot sequence.
func (e *Engine) GetDocument(ctx context.Context, id int64) (*DocumentDetail, error) {
	doc, err := e.documents.GetByID(id)
	if err != nil {
		return nil, err
	}

	snapshots, err := e.snapshots.GetByDocumentID(nil, id)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{Document: doc, Snapshots: snapshots}, nil
}

// ListDocuments returns documents filtered by author and/or status.
func (e *Engine) ListDocuments(ctx context.Context, authorID, status string, limit, offset int) ([]*entity.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return e.documents.List(authorID, status, limit, offset)
}

// SubmitDocument is the single irreversible commit point: it resolves the
// approval line for the document's author, freezes it into step snapshots and
// moves the document to IN_PROGRESS, all in one transaction. A second submit
// observes the compare-and-set failure and reports InvalidState without
// creating duplicate snapshots.
func (e *Engine) SubmitDocument(ctx context.Context, id int64, override *resolver.Source) (*DocumentDetail, error) {
	doc, err := e.documents.GetByID(id)
	if err != nil {
		return nil, err
	}

	machine := workflow.NewDocumentMachine(doc.Status)
	if !machine.CanFire(workflow.TriggerSubmit) {
		return nil, apperr.InvalidStatef("document %d is %s, only drafts can be submitted", id, doc.Status)
	}

	source := resolver.Source{TemplateVersionID: doc.FormVersionID}
	if override != nil {
		source = *override
	}

	resolved, err := e.resolver.PreviewApprovalLine(ctx, source, doc.AuthorID)
	if err != nil {
		return nil, err
	}
	if err := validateLine(resolved); err != nil {
		return nil, err
	}

	snapshots := make([]*entity.StepSnapshot, len(resolved))
	for i, step := range resolved {
		snapshots[i] = &entity.StepSnapshot{
			DocumentID:     id,
			StepOrder:      step.StepOrder,
			StepType:       step.StepType,
			ApproverID:     step.ApproverID,
			ApproverName:   step.ApproverName,
			DepartmentName: step.DepartmentName,
			PositionName:   step.PositionName,
			Rule:           step.Rule,
			IsRequired:     step.IsRequired,
			Status:         entity.StepStatusPending,
		}
	}

	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.documents.UpdateStatus(tx, id, entity.DocumentStatusDraft, entity.DocumentStatusInProgress); err != nil {
			return err
		}
		return e.snapshots.CreateAll(tx, snapshots)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Document submitted",
		zap.Int64("document_id", id),
		zap.Int("steps", len(snapshots)))

	e.events.DispatchAsync(ctx, event.New(event.TypeDocumentSubmitted, id, map[string]interface{}{
		"author_id": doc.AuthorID,
		"steps":     len(snapshots),
	}))
	e.emitActivated(ctx, id, snapshots, true)

	detail, err := e.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// CancelDocument terminates an in-progress document, marking every
// still-PENDING snapshot CANCELLED. Whether the caller is entitled to cancel
// is a policy decision owned by the boundary layer; the engine enforces only
// the state-machine shape.
func (e *Engine) CancelDocument(ctx context.Context, id int64, callerID, reason string) (*DocumentDetail, error) {
	if reason == "" {
		return nil, apperr.Validationf("cancellation reason is required")
	}

	doc, err := e.documents.GetByID(id)
	if err != nil {
		return nil, err
	}

	machine := workflow.NewDocumentMachine(doc.Status)
	if !machine.CanFire(workflow.TriggerCancel) {
		return nil, apperr.InvalidStatef("document %d is %s, only in-progress documents can be cancelled", id, doc.Status)
	}

	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.documents.UpdateStatus(tx, id, entity.DocumentStatusInProgress, entity.DocumentStatusCancelled); err != nil {
			return err
		}
		return e.snapshots.CancelPending(tx, id, fmt.Sprintf("document cancelled: %s", reason))
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Document cancelled",
		zap.Int64("document_id", id),
		zap.String("caller_id", callerID))

	e.events.DispatchAsync(ctx, event.New(event.TypeDocumentCancelled, id, map[string]interface{}{
		"caller_id": callerID,
		"reason":    reason,
	}))

	return e.GetDocument(ctx, id)
}

// validateLine rejects approval lines that could never progress.
func validateLine(resolved []resolver.ResolvedStep) error {
	if len(resolved) == 0 {
		return apperr.Validationf("approval line has no steps")
	}
	for _, step := range resolved {
		if step.IsRequired && entity.GatingStepType(step.StepType) {
			return nil
		}
	}
	return apperr.Validationf("approval line has no required steps")
}
