package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
	"github.com/garyjia/approval-flow/internal/domain/workflow"
	"go.uber.org/zap"
)

// StepResult is the outcome of a step transition, including the document if
// the transition cascaded to it.
type StepResult struct {
	Snapshot *entity.StepSnapshot `json:"snapshot"`
	Document *entity.Document     `json:"document"`
}

// ApproveStep transitions the active required step to APPROVED. Valid for
// AGREEMENT and APPROVAL steps. If this was the last required step the
// document cascades to APPROVED; otherwise the next required pending step in
// stepOrder becomes active.
func (e *Engine) ApproveStep(ctx context.Context, snapshotID int64, callerID, comment string) (*StepResult, error) {
	return e.transition(ctx, snapshotID, callerID, stepAction{
		trigger:  workflow.TriggerApprove,
		toStatus: entity.StepStatusApproved,
		types:    []string{entity.StepTypeAgreement, entity.StepTypeApproval},
		comment:  comment,
	})
}

// RejectStep transitions the active required step to REJECTED and cascades
// the document to REJECTED immediately, regardless of remaining steps. A
// comment is mandatory.
func (e *Engine) RejectStep(ctx context.Context, snapshotID int64, callerID, comment string) (*StepResult, error) {
	if comment == "" {
		return nil, apperr.Validationf("rejection comment is required")
	}
	return e.transition(ctx, snapshotID, callerID, stepAction{
		trigger:  workflow.TriggerReject,
		toStatus: entity.StepStatusRejected,
		types:    []string{entity.StepTypeAgreement, entity.StepTypeApproval, entity.StepTypeImplementation},
		comment:  comment,
	})
}

// CompleteAgreement approves an AGREEMENT step. Same cascade rules as
// ApproveStep.
func (e *Engine) CompleteAgreement(ctx context.Context, snapshotID int64, callerID, comment string) (*StepResult, error) {
	return e.transition(ctx, snapshotID, callerID, stepAction{
		trigger:  workflow.TriggerApprove,
		toStatus: entity.StepStatusApproved,
		types:    []string{entity.StepTypeAgreement},
		comment:  comment,
	})
}

// CompleteImplementation approves an IMPLEMENTATION step, attaching the
// opaque result payload to the snapshot. The engine does not interpret it.
func (e *Engine) CompleteImplementation(ctx context.Context, snapshotID int64, callerID, comment, resultData string) (*StepResult, error) {
	return e.transition(ctx, snapshotID, callerID, stepAction{
		trigger:    workflow.TriggerApprove,
		toStatus:   entity.StepStatusApproved,
		types:      []string{entity.StepTypeImplementation},
		comment:    comment,
		resultData: resultData,
	})
}

type stepAction struct {
	trigger    workflow.Trigger
	toStatus   string
	types      []string
	comment    string
	resultData string
}

func (a stepAction) allowsType(stepType string) bool {
	for _, t := range a.types {
		if t == stepType {
			return true
		}
	}
	return false
}

// transition applies one step action under the full gating rules: the caller
// must be the resolved approver, the document must be in progress and the
// snapshot must be in the active required group. Snapshot and document
// updates commit in a single transaction; the document status is always
// re-derived from the complete snapshot set rather than adjusted
// incrementally.
func (e *Engine) transition(ctx context.Context, snapshotID int64, callerID string, act stepAction) (*StepResult, error) {
	snap, err := e.snapshots.GetByID(snapshotID)
	if err != nil {
		return nil, err
	}

	doc, err := e.documents.GetByID(snap.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != entity.DocumentStatusInProgress {
		return nil, apperr.InvalidStatef("document %d is %s, steps can only be acted on while in progress", doc.ID, doc.Status)
	}

	if callerID == "" || callerID != snap.ApproverID {
		return nil, apperr.Forbiddenf("caller %s is not the approver of step snapshot %d", callerID, snapshotID)
	}

	if !act.allowsType(snap.StepType) {
		return nil, apperr.InvalidStatef("step snapshot %d has type %s, not a valid target for this operation", snapshotID, snap.StepType)
	}

	machine := workflow.NewStepMachine(snap.Status)
	if !machine.CanFire(act.trigger) {
		return nil, apperr.InvalidStatef("step snapshot %d is %s", snapshotID, snap.Status)
	}

	all, err := e.snapshots.GetByDocumentID(nil, snap.DocumentID)
	if err != nil {
		return nil, err
	}
	if !isActive(snap, all) {
		return nil, apperr.InvalidStatef("step snapshot %d is not the active step for document %d", snapshotID, snap.DocumentID)
	}
	previousActive := activeOrder(all)

	now := time.Now()
	var newDocStatus string
	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.snapshots.UpdateStatus(tx, snapshotID, act.toStatus, act.comment, act.resultData, &now); err != nil {
			return err
		}
		// Re-read inside the transaction so a racing approval in a
		// parallel group observes its peer's committed status, not the
		// pre-transaction set.
		current, err := e.snapshots.GetByDocumentID(tx, snap.DocumentID)
		if err != nil {
			return err
		}
		all = current
		newDocStatus = deriveDocumentStatus(current)
		if newDocStatus != entity.DocumentStatusInProgress {
			if err := e.documents.UpdateStatus(tx, doc.ID, entity.DocumentStatusInProgress, newDocStatus); err != nil {
				return err
			}
			if newDocStatus == entity.DocumentStatusRejected {
				return e.snapshots.CancelPending(tx, doc.ID, "document rejected")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Step transitioned",
		zap.Int64("snapshot_id", snapshotID),
		zap.Int64("document_id", doc.ID),
		zap.String("step_status", act.toStatus),
		zap.String("document_status", newDocStatus))

	e.emitStepEvents(ctx, doc.ID, snapshotID, act, newDocStatus, previousActive, all)

	updatedSnap, err := e.snapshots.GetByID(snapshotID)
	if err != nil {
		return nil, err
	}
	updatedDoc, err := e.documents.GetByID(doc.ID)
	if err != nil {
		return nil, err
	}
	return &StepResult{Snapshot: updatedSnap, Document: updatedDoc}, nil
}

// activeOrder returns the lowest stepOrder holding a PENDING gating snapshot,
// or 0 when none remains.
func activeOrder(snapshots []*entity.StepSnapshot) int {
	order := 0
	for _, s := range snapshots {
		if s.Gating() && s.Status == entity.StepStatusPending {
			if order == 0 || s.StepOrder < order {
				order = s.StepOrder
			}
		}
	}
	return order
}

// isActive reports whether the snapshot is in the active required group.
// Snapshots sharing a stepOrder form a parallel group: all of them are active
// together, every one must approve to advance and any rejection cascades.
func isActive(snap *entity.StepSnapshot, all []*entity.StepSnapshot) bool {
	if !snap.Gating() || snap.Status != entity.StepStatusPending {
		return false
	}
	return snap.StepOrder == activeOrder(all)
}

// deriveDocumentStatus re-evaluates the document status from the full
// snapshot set. Any rejected gating step fails the document; the document is
// approved only once every gating step is approved.
func deriveDocumentStatus(snapshots []*entity.StepSnapshot) string {
	allApproved := true
	for _, s := range snapshots {
		if !s.Gating() {
			continue
		}
		switch s.Status {
		case entity.StepStatusRejected:
			return entity.DocumentStatusRejected
		case entity.StepStatusApproved:
		default:
			allApproved = false
		}
	}
	if allApproved {
		return entity.DocumentStatusApproved
	}
	return entity.DocumentStatusInProgress
}

func (e *Engine) emitStepEvents(ctx context.Context, docID, snapshotID int64, act stepAction, docStatus string, previousActive int, all []*entity.StepSnapshot) {
	stepEvent := event.TypeStepApproved
	if act.toStatus == entity.StepStatusRejected {
		stepEvent = event.TypeStepRejected
	}
	e.events.DispatchAsync(ctx, event.NewForStep(stepEvent, docID, snapshotID, map[string]interface{}{
		"comment": act.comment,
	}))

	switch docStatus {
	case entity.DocumentStatusApproved:
		e.events.DispatchAsync(ctx, event.New(event.TypeDocumentApproved, docID, nil))
	case entity.DocumentStatusRejected:
		e.events.DispatchAsync(ctx, event.New(event.TypeDocumentRejected, docID, nil))
	default:
		if next := activeOrder(all); next != 0 && next != previousActive {
			e.emitActivated(ctx, docID, all, false)
		}
	}
}

// emitActivated notifies the approvers of the currently active group, plus
// reference assignees when the line first goes live at submission.
func (e *Engine) emitActivated(ctx context.Context, docID int64, snapshots []*entity.StepSnapshot, includeReferences bool) {
	active := activeOrder(snapshots)
	for _, s := range snapshots {
		notify := s.Gating() && s.Status == entity.StepStatusPending && s.StepOrder == active
		if !notify && includeReferences && s.StepType == entity.StepTypeReference && s.Status == entity.StepStatusPending {
			notify = true
		}
		if notify {
			e.events.DispatchAsync(ctx, event.NewForStep(event.TypeStepActivated, docID, s.ID, map[string]interface{}{
				"approver_id": s.ApproverID,
				"step_type":   s.StepType,
			}))
		}
	}
}
