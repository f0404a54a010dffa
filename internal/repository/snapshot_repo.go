package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"go.uber.org/zap"
)

// SnapshotRepository handles step snapshot database operations. Snapshots are
// created only as a full set at submission and mutated only in status,
// comment, result data and approval time.
type SnapshotRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB, logger *zap.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: logger,
	}
}

func (r *SnapshotRepository) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.db
}

// CreateAll inserts the full snapshot set for a document
func (r *SnapshotRepository) CreateAll(tx *sql.Tx, snapshots []*entity.StepSnapshot) error {
	query := `
		INSERT INTO step_snapshots (
			document_id, step_order, step_type,
			approver_id, approver_name, department_name, position_name,
			rule_kind, rule_employee_id, rule_department_id,
			is_required, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, s := range snapshots {
		result, err := r.execer(tx).Exec(query,
			s.DocumentID, s.StepOrder, s.StepType,
			s.ApproverID, s.ApproverName, s.DepartmentName, s.PositionName,
			s.Rule.Kind, s.Rule.EmployeeID, s.Rule.DepartmentID,
			s.IsRequired, s.Status,
		)
		if err != nil {
			r.logger.Error("Failed to create step snapshot",
				zap.Int64("document_id", s.DocumentID),
				zap.Int("step_order", s.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create step snapshot (order=%d): %w", s.StepOrder, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		s.ID = id
	}
	return nil
}

// GetByID retrieves a step snapshot by ID
func (r *SnapshotRepository) GetByID(id int64) (*entity.StepSnapshot, error) {
	query := selectSnapshot + ` WHERE id = ?`

	s, err := scanSnapshot(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("step snapshot %d", id)
	}
	if err != nil {
		r.logger.Error("Failed to get step snapshot", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get step snapshot: %w", err)
	}
	return s, nil
}

// GetByDocumentID returns a document's snapshots in stepOrder ascending. This
// total order is the contract every downstream consumer relies on. Pass a tx
// to observe the set as of the transaction, including its own writes.
func (r *SnapshotRepository) GetByDocumentID(tx *sql.Tx, docID int64) ([]*entity.StepSnapshot, error) {
	query := selectSnapshot + ` WHERE document_id = ? ORDER BY step_order ASC, id ASC`

	rows, err := r.execer(tx).Query(query, docID)
	if err != nil {
		r.logger.Error("Failed to get snapshots for document",
			zap.Int64("document_id", docID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get step snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*entity.StepSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// UpdateStatus transitions a snapshot with a compare-and-set on PENDING.
// Exactly one of two racing transitions succeeds; the loser sees
// apperr.ErrInvalidState.
func (r *SnapshotRepository) UpdateStatus(tx *sql.Tx, id int64, toStatus, comment, resultData string, approvedAt *time.Time) error {
	query := `
		UPDATE step_snapshots
		SET status = ?, comment = ?, result_data = ?, approved_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.execer(tx).Exec(query, toStatus, comment, resultData, approvedAt, id, entity.StepStatusPending)
	if err != nil {
		r.logger.Error("Failed to update snapshot status",
			zap.Int64("id", id),
			zap.String("to_status", toStatus),
			zap.Error(err))
		return fmt.Errorf("failed to update snapshot status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.InvalidStatef("step snapshot %d is no longer %s", id, entity.StepStatusPending)
	}
	return nil
}

// CancelPending marks all still-PENDING snapshots of a document CANCELLED
func (r *SnapshotRepository) CancelPending(tx *sql.Tx, docID int64, comment string) error {
	query := `
		UPDATE step_snapshots
		SET status = ?, comment = ?
		WHERE document_id = ? AND status = ?
	`

	if _, err := r.execer(tx).Exec(query,
		entity.StepStatusCancelled, comment, docID, entity.StepStatusPending); err != nil {
		r.logger.Error("Failed to cancel pending snapshots",
			zap.Int64("document_id", docID),
			zap.Error(err))
		return fmt.Errorf("failed to cancel pending snapshots: %w", err)
	}
	return nil
}

const selectSnapshot = `
	SELECT id, document_id, step_order, step_type,
		approver_id, approver_name, department_name, position_name,
		rule_kind, rule_employee_id, rule_department_id,
		is_required, status, comment, result_data, approved_at, created_at
	FROM step_snapshots`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*entity.StepSnapshot, error) {
	var s entity.StepSnapshot
	var kind string
	var approvedAt sql.NullTime

	err := row.Scan(
		&s.ID, &s.DocumentID, &s.StepOrder, &s.StepType,
		&s.ApproverID, &s.ApproverName, &s.DepartmentName, &s.PositionName,
		&kind, &s.Rule.EmployeeID, &s.Rule.DepartmentID,
		&s.IsRequired, &s.Status, &s.Comment, &s.ResultData, &approvedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Rule.Kind = entity.RuleKind(kind)
	if approvedAt.Valid {
		s.ApprovedAt = &approvedAt.Time
	}
	return &s, nil
}
