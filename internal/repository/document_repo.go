package repository

import (
	"database/sql"
	"fmt"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"go.uber.org/zap"
)

// DocumentRepository handles document database operations
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *DocumentRepository) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a new document
func (r *DocumentRepository) Create(tx *sql.Tx, doc *entity.Document) error {
	query := `
		INSERT INTO documents (title, content, status, form_version_id, author_id)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.execer(tx).Exec(query,
		doc.Title, doc.Content, doc.Status, doc.FormVersionID, doc.AuthorID)
	if err != nil {
		r.logger.Error("Failed to create document", zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	doc.ID = id
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(id int64) (*entity.Document, error) {
	query := `
		SELECT id, title, content, status, form_version_id, author_id, created_at, updated_at
		FROM documents
		WHERE id = ?
	`

	var doc entity.Document
	err := r.db.QueryRow(query, id).Scan(
		&doc.ID, &doc.Title, &doc.Content, &doc.Status,
		&doc.FormVersionID, &doc.AuthorID, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("document %d", id)
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// UpdateFields updates a document's editable fields
func (r *DocumentRepository) UpdateFields(tx *sql.Tx, id int64, title, content string) error {
	query := `
		UPDATE documents
		SET title = ?, content = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.execer(tx).Exec(query, title, content, id)
	if err != nil {
		r.logger.Error("Failed to update document", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFoundf("document %d", id)
	}
	return nil
}

// UpdateStatus transitions a document's status with a compare-and-set on the
// expected prior status. It returns apperr.ErrInvalidState when the document
// is no longer in that status, which makes racing transitions resolve with
// exactly one winner.
func (r *DocumentRepository) UpdateStatus(tx *sql.Tx, id int64, fromStatus, toStatus string) error {
	query := `
		UPDATE documents
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`

	result, err := r.execer(tx).Exec(query, toStatus, id, fromStatus)
	if err != nil {
		r.logger.Error("Failed to update document status",
			zap.Int64("id", id),
			zap.String("to_status", toStatus),
			zap.Error(err))
		return fmt.Errorf("failed to update document status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.InvalidStatef("document %d is not %s", id, fromStatus)
	}
	return nil
}

// Delete removes a document. Callers must ensure the document is still DRAFT;
// snapshots never exist for drafts so no cascade is needed.
func (r *DocumentRepository) Delete(tx *sql.Tx, id int64) error {
	result, err := r.execer(tx).Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete document", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFoundf("document %d", id)
	}
	return nil
}

// List retrieves documents filtered by author and/or status
func (r *DocumentRepository) List(authorID, status string, limit, offset int) ([]*entity.Document, error) {
	query := `
		SELECT id, title, content, status, form_version_id, author_id, created_at, updated_at
		FROM documents
		WHERE 1=1
	`
	args := []interface{}{}
	if authorID != "" {
		query += " AND author_id = ?"
		args = append(args, authorID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		var doc entity.Document
		if err := rows.Scan(
			&doc.ID, &doc.Title, &doc.Content, &doc.Status,
			&doc.FormVersionID, &doc.AuthorID, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}
