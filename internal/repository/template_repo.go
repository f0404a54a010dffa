package repository

import (
	"database/sql"
	"fmt"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"go.uber.org/zap"
)

// TemplateRepository handles approval line template database operations
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TemplateRepository) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.db
}

// execer abstracts *sql.DB and *sql.Tx for tx-optional writes
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// CreateTemplate inserts a new template header
func (r *TemplateRepository) CreateTemplate(tx *sql.Tx, tpl *entity.ApprovalLineTemplate) error {
	query := `
		INSERT INTO templates (name, description, type, is_active)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.execer(tx).Exec(query, tpl.Name, tpl.Description, tpl.Type, tpl.IsActive)
	if err != nil {
		r.logger.Error("Failed to create template", zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	tpl.ID = id
	return nil
}

// CreateVersion inserts a version and its step definitions. The version
// number must be unique within the template; the UNIQUE constraint backs the
// create-time (templateId, versionNumber) check.
func (r *TemplateRepository) CreateVersion(tx *sql.Tx, v *entity.TemplateVersion) error {
	ex := r.execer(tx)

	result, err := ex.Exec(
		`INSERT INTO template_versions (template_id, version_number) VALUES (?, ?)`,
		v.TemplateID, v.VersionNumber,
	)
	if err != nil {
		r.logger.Error("Failed to create template version",
			zap.Int64("template_id", v.TemplateID),
			zap.Error(err))
		return fmt.Errorf("failed to create template version: %w", err)
	}

	versionID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	v.ID = versionID

	for i := range v.Steps {
		step := &v.Steps[i]
		step.VersionID = versionID

		result, err := ex.Exec(`
			INSERT INTO step_definitions (
				version_id, step_order, step_type,
				rule_kind, rule_employee_id, rule_department_id, is_required
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			versionID, step.StepOrder, step.StepType,
			step.Rule.Kind, step.Rule.EmployeeID, step.Rule.DepartmentID, step.IsRequired,
		)
		if err != nil {
			return fmt.Errorf("failed to create step definition (order=%d): %w", step.StepOrder, err)
		}
		stepID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.ID = stepID
	}

	return nil
}

// SetCurrentVersion moves the template's current-version pointer
func (r *TemplateRepository) SetCurrentVersion(tx *sql.Tx, templateID, versionID int64) error {
	query := `
		UPDATE templates
		SET current_version_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.execer(tx).Exec(query, versionID, templateID); err != nil {
		r.logger.Error("Failed to set current version",
			zap.Int64("template_id", templateID),
			zap.Error(err))
		return fmt.Errorf("failed to set current version: %w", err)
	}
	return nil
}

// SetActive toggles a template's active flag
func (r *TemplateRepository) SetActive(tx *sql.Tx, templateID int64, active bool) error {
	query := `
		UPDATE templates
		SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.execer(tx).Exec(query, active, templateID)
	if err != nil {
		return fmt.Errorf("failed to update template active flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFoundf("template %d", templateID)
	}
	return nil
}

// NextVersionNumber returns the next version number for a template
func (r *TemplateRepository) NextVersionNumber(tx *sql.Tx, templateID int64) (int, error) {
	var maxVersion sql.NullInt64
	err := r.execer(tx).QueryRow(
		`SELECT MAX(version_number) FROM template_versions WHERE template_id = ?`,
		templateID,
	).Scan(&maxVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to get max version number: %w", err)
	}
	return int(maxVersion.Int64) + 1, nil
}

// GetTemplate retrieves a template header by ID
func (r *TemplateRepository) GetTemplate(id int64) (*entity.ApprovalLineTemplate, error) {
	query := `
		SELECT id, name, description, type, is_active,
			COALESCE(current_version_id, 0), created_at, updated_at
		FROM templates
		WHERE id = ?
	`

	var tpl entity.ApprovalLineTemplate
	err := r.db.QueryRow(query, id).Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.Description,
		&tpl.Type,
		&tpl.IsActive,
		&tpl.CurrentVersionID,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("template %d", id)
	}
	if err != nil {
		r.logger.Error("Failed to get template", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &tpl, nil
}

// GetVersion retrieves a version with its ordered step definitions
func (r *TemplateRepository) GetVersion(id int64) (*entity.TemplateVersion, error) {
	query := `
		SELECT id, template_id, version_number, created_at
		FROM template_versions
		WHERE id = ?
	`

	var v entity.TemplateVersion
	err := r.db.QueryRow(query, id).Scan(&v.ID, &v.TemplateID, &v.VersionNumber, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("template version %d", id)
	}
	if err != nil {
		r.logger.Error("Failed to get template version", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template version: %w", err)
	}

	steps, err := r.getSteps(v.ID)
	if err != nil {
		return nil, err
	}
	v.Steps = steps
	return &v, nil
}

func (r *TemplateRepository) getSteps(versionID int64) ([]entity.StepDefinition, error) {
	query := `
		SELECT id, version_id, step_order, step_type,
			rule_kind, rule_employee_id, rule_department_id, is_required
		FROM step_definitions
		WHERE version_id = ?
		ORDER BY step_order ASC
	`

	rows, err := r.db.Query(query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get step definitions: %w", err)
	}
	defer rows.Close()

	var steps []entity.StepDefinition
	for rows.Next() {
		var s entity.StepDefinition
		var kind string
		if err := rows.Scan(
			&s.ID, &s.VersionID, &s.StepOrder, &s.StepType,
			&kind, &s.Rule.EmployeeID, &s.Rule.DepartmentID, &s.IsRequired,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step definition: %w", err)
		}
		s.Rule.Kind = entity.RuleKind(kind)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// List retrieves templates, optionally filtered by type
func (r *TemplateRepository) List(typeFilter string) ([]*entity.ApprovalLineTemplate, error) {
	query := `
		SELECT id, name, description, type, is_active,
			COALESCE(current_version_id, 0), created_at, updated_at
		FROM templates
	`
	args := []interface{}{}
	if typeFilter != "" {
		query += " WHERE type = ?"
		args = append(args, typeFilter)
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*entity.ApprovalLineTemplate
	for rows.Next() {
		var tpl entity.ApprovalLineTemplate
		if err := rows.Scan(
			&tpl.ID, &tpl.Name, &tpl.Description, &tpl.Type, &tpl.IsActive,
			&tpl.CurrentVersionID, &tpl.CreatedAt, &tpl.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, &tpl)
	}
	return templates, rows.Err()
}
