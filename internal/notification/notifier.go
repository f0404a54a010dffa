package notification

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-flow/internal/dispatcher"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
	"go.uber.org/zap"
)

// MessageSender delivers a text notification to an employee
type MessageSender interface {
	SendText(ctx context.Context, employeeID, text string) (string, error)
}

// SnapshotReader looks up step snapshots for notification content
type SnapshotReader interface {
	GetByID(id int64) (*entity.StepSnapshot, error)
}

// DocumentReader looks up documents for notification content
type DocumentReader interface {
	GetByID(id int64) (*entity.Document, error)
}

// ApproverNotifier listens for engine events and messages the people who
// need to act or be informed. Delivery is fire-and-forget: failures are
// logged and never affect the operation that produced the event.
type ApproverNotifier struct {
	sender    MessageSender
	snapshots SnapshotReader
	documents DocumentReader
	logger    *zap.Logger
}

// NewApproverNotifier creates a new notifier
func NewApproverNotifier(
	sender MessageSender,
	snapshots SnapshotReader,
	documents DocumentReader,
	logger *zap.Logger,
) *ApproverNotifier {
	return &ApproverNotifier{
		sender:    sender,
		snapshots: snapshots,
		documents: documents,
		logger:    logger,
	}
}

// Register subscribes the notifier to the events it cares about.
func (n *ApproverNotifier) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeStepActivated, "approver-notifier", n.handleStepActivated)
	d.SubscribeNamed(event.TypeDocumentApproved, "author-notifier-approved", n.handleDocumentFinal)
	d.SubscribeNamed(event.TypeDocumentRejected, "author-notifier-rejected", n.handleDocumentFinal)
	d.SubscribeNamed(event.TypeDocumentCancelled, "author-notifier-cancelled", n.handleDocumentFinal)
}

func (n *ApproverNotifier) handleStepActivated(ctx context.Context, evt *event.Event) error {
	snap, err := n.snapshots.GetByID(evt.SnapshotID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot for notification: %w", err)
	}

	doc, err := n.documents.GetByID(evt.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to load document for notification: %w", err)
	}

	var text string
	if snap.StepType == entity.StepTypeReference {
		text = fmt.Sprintf("[FYI] Document %q (#%d) entered approval. You are listed as a reference.", doc.Title, doc.ID)
	} else {
		text = fmt.Sprintf("Document %q (#%d) is waiting for your %s (step %d).",
			doc.Title, doc.ID, actionWord(snap.StepType), snap.StepOrder)
	}

	if _, err := n.sender.SendText(ctx, snap.ApproverID, text); err != nil {
		n.logger.Warn("Failed to notify approver",
			zap.Int64("document_id", doc.ID),
			zap.Int64("snapshot_id", snap.ID),
			zap.String("approver_id", snap.ApproverID),
			zap.Error(err))
	}
	return nil
}

func (n *ApproverNotifier) handleDocumentFinal(ctx context.Context, evt *event.Event) error {
	doc, err := n.documents.GetByID(evt.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to load document for notification: %w", err)
	}

	text := fmt.Sprintf("Your document %q (#%d) is now %s.", doc.Title, doc.ID, doc.Status)
	if _, err := n.sender.SendText(ctx, doc.AuthorID, text); err != nil {
		n.logger.Warn("Failed to notify author",
			zap.Int64("document_id", doc.ID),
			zap.String("author_id", doc.AuthorID),
			zap.Error(err))
	}
	return nil
}

func actionWord(stepType string) string {
	switch stepType {
	case entity.StepTypeAgreement:
		return "agreement"
	case entity.StepTypeImplementation:
		return "implementation"
	default:
		return "approval"
	}
}
