package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/garyjia/approval-flow/internal/dispatcher"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/resolver"
	"go.uber.org/zap"
)

// DocumentRepo defines the document persistence contract for the engine
type DocumentRepo interface {
	Create(tx *sql.Tx, doc *entity.Document) error
	GetByID(id int64) (*entity.Document, error)
	UpdateFields(tx *sql.Tx, id int64, title, content string) error
	UpdateStatus(tx *sql.Tx, id int64, fromStatus, toStatus string) error
	Delete(tx *sql.Tx, id int64) error
	List(authorID, status string, limit, offset int) ([]*entity.Document, error)
}

// SnapshotRepo defines the step snapshot persistence contract for the engine
type SnapshotRepo interface {
	CreateAll(tx *sql.Tx, snapshots []*entity.StepSnapshot) error
	GetByID(id int64) (*entity.StepSnapshot, error)
	GetByDocumentID(tx *sql.Tx, docID int64) ([]*entity.StepSnapshot, error)
	UpdateStatus(tx *sql.Tx, id int64, toStatus, comment, resultData string, approvedAt *time.Time) error
	CancelPending(tx *sql.Tx, docID int64, comment string) error
}

// LineResolver materializes approval lines for a requester
type LineResolver interface {
	PreviewApprovalLine(ctx context.Context, source resolver.Source, requesterID string) ([]resolver.ResolvedStep, error)
}

// TxRunner runs a function within a database transaction
type TxRunner interface {
	WithTransaction(fn func(*sql.Tx) error) error
}

// Engine owns the document lifecycle and step transitions. Every operation is
// a short-lived transaction; the document plus its snapshot set is the unit
// of mutual exclusion, serialized through compare-and-set status updates.
type Engine struct {
	db        TxRunner
	documents DocumentRepo
	snapshots SnapshotRepo
	resolver  LineResolver
	events    dispatcher.Dispatcher
	logger    *zap.Logger
}

// New creates a new approval engine
func New(
	db TxRunner,
	documents DocumentRepo,
	snapshots SnapshotRepo,
	lineResolver LineResolver,
	events dispatcher.Dispatcher,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:        db,
		documents: documents,
		snapshots: snapshots,
		resolver:  lineResolver,
		events:    events,
		logger:    logger,
	}
}

// DocumentDetail bundles a document with its ordered snapshot sequence.
type DocumentDetail struct {
	Document  *entity.Document       `json:"document"`
	Snapshots []*entity.StepSnapshot `json:"snapshots,omitempty"`
}
