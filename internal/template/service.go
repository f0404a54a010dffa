package template

import (
	"context"
	"database/sql"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"go.uber.org/zap"
)

// Repository defines the template persistence contract for the store
type Repository interface {
	CreateTemplate(tx *sql.Tx, tpl *entity.ApprovalLineTemplate) error
	CreateVersion(tx *sql.Tx, v *entity.TemplateVersion) error
	SetCurrentVersion(tx *sql.Tx, templateID, versionID int64) error
	SetActive(tx *sql.Tx, templateID int64, active bool) error
	NextVersionNumber(tx *sql.Tx, templateID int64) (int, error)
	GetTemplate(id int64) (*entity.ApprovalLineTemplate, error)
	GetVersion(id int64) (*entity.TemplateVersion, error)
	List(typeFilter string) ([]*entity.ApprovalLineTemplate, error)
}

// TxRunner runs a function within a database transaction
type TxRunner interface {
	WithTransaction(fn func(*sql.Tx) error) error
}

// Store manages approval line templates and their append-only versions.
type Store struct {
	db     TxRunner
	repo   Repository
	logger *zap.Logger
}

// NewStore creates a new template store
func NewStore(db TxRunner, repo Repository, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		repo:   repo,
		logger: logger,
	}
}

// CreateTemplate creates a new template with version 1, empty or seeded from
// the given step list.
func (s *Store) CreateTemplate(ctx context.Context, name, description, templateType string, steps []entity.StepDefinition) (*entity.ApprovalLineTemplate, error) {
	if name == "" {
		return nil, apperr.Validationf("template name is required")
	}
	if len(steps) > 0 {
		if err := ValidateSteps(steps); err != nil {
			return nil, err
		}
	}

	tpl := &entity.ApprovalLineTemplate{
		Name:        name,
		Description: description,
		Type:        templateType,
		IsActive:    true,
	}

	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.repo.CreateTemplate(tx, tpl); err != nil {
			return err
		}

		version := &entity.TemplateVersion{
			TemplateID:    tpl.ID,
			VersionNumber: 1,
			Steps:         steps,
		}
		if err := s.repo.CreateVersion(tx, version); err != nil {
			return err
		}

		tpl.CurrentVersionID = version.ID
		return s.repo.SetCurrentVersion(tx, tpl.ID, version.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Template created",
		zap.Int64("template_id", tpl.ID),
		zap.String("name", name))
	return tpl, nil
}

// CreateVersion appends a new version to a template and moves its current
// pointer. Prior versions are never mutated, so documents that reference
// them are unaffected.
func (s *Store) CreateVersion(ctx context.Context, templateID int64, steps []entity.StepDefinition) (*entity.TemplateVersion, error) {
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetTemplate(templateID); err != nil {
		return nil, err
	}

	version := &entity.TemplateVersion{TemplateID: templateID, Steps: steps}

	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		next, err := s.repo.NextVersionNumber(tx, templateID)
		if err != nil {
			return err
		}
		version.VersionNumber = next

		if err := s.repo.CreateVersion(tx, version); err != nil {
			return err
		}
		return s.repo.SetCurrentVersion(tx, templateID, version.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Template version created",
		zap.Int64("template_id", templateID),
		zap.Int64("version_id", version.ID),
		zap.Int("version_number", version.VersionNumber))
	return version, nil
}

// CloneTemplate deep-copies a version's step definitions into a new,
// independent template. Later edits to the source never reach the clone.
func (s *Store) CloneTemplate(ctx context.Context, sourceVersionID int64, newName string) (*entity.ApprovalLineTemplate, error) {
	if newName == "" {
		return nil, apperr.Validationf("template name is required")
	}

	source, err := s.repo.GetVersion(sourceVersionID)
	if err != nil {
		return nil, err
	}

	sourceTpl, err := s.repo.GetTemplate(source.TemplateID)
	if err != nil {
		return nil, err
	}

	steps := make([]entity.StepDefinition, len(source.Steps))
	for i, def := range source.Steps {
		steps[i] = entity.StepDefinition{
			StepOrder:  def.StepOrder,
			StepType:   def.StepType,
			Rule:       def.Rule,
			IsRequired: def.IsRequired,
		}
	}

	return s.CreateTemplate(ctx, newName, sourceTpl.Description, sourceTpl.Type, steps)
}

// ListTemplates returns templates, optionally filtered by type
func (s *Store) ListTemplates(ctx context.Context, typeFilter string) ([]*entity.ApprovalLineTemplate, error) {
	return s.repo.List(typeFilter)
}

// GetVersion returns a version with its ordered step definitions. Versions
// of deactivated templates are not served, so new submissions and previews
// cannot reference them; documents already submitted carry their own
// snapshots and never come back here.
func (s *Store) GetVersion(ctx context.Context, id int64) (*entity.TemplateVersion, error) {
	version, err := s.repo.GetVersion(id)
	if err != nil {
		return nil, err
	}
	tpl, err := s.repo.GetTemplate(version.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, apperr.InvalidStatef("template %d is deactivated", tpl.ID)
	}
	return version, nil
}

// DeactivateTemplate hides a template from new submissions. Documents already
// submitted against its versions are untouched.
func (s *Store) DeactivateTemplate(ctx context.Context, id int64) error {
	return s.repo.SetActive(nil, id, false)
}
