package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/engine"
	"github.com/garyjia/approval-flow/internal/resolver"
	"github.com/garyjia/approval-flow/internal/template"
)

// employeeHeader carries the pre-validated principal id injected by the
// boundary layer. This service performs no authentication of its own.
const employeeHeader = "X-Employee-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine   *engine.Engine
	resolver *resolver.Resolver
	store    *template.Store
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(eng *engine.Engine, res *resolver.Resolver, store *template.Store, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine:   eng,
		resolver: res,
		store:    store,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// respondError maps the engine's error taxonomy onto HTTP status codes.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
		h.logger.Warn("Forbidden operation attempted",
			zap.String("path", c.Request.URL.Path),
			zap.String("caller_id", c.GetHeader(employeeHeader)),
			zap.Error(err))
	case errors.Is(err, apperr.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrUnresolvableAssignee):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		status = http.StatusServiceUnavailable
	default:
		h.logger.Error("Unhandled error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	c.JSON(status, Response{
		Success:   false,
		Error:     err.Error(),
		Retryable: apperr.IsRetryable(err),
	})
}

func (h *Handlers) callerID(c *gin.Context) string {
	return c.GetHeader(employeeHeader)
}

func pathID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	respondOK(c, http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- Templates ---

// CreateTemplateRequest is the payload for POST /templates
type CreateTemplateRequest struct {
	Name        string                  `json:"name" binding:"required"`
	Description string                  `json:"description"`
	Type        string                  `json:"type"`
	Steps       []entity.StepDefinition `json:"steps"`
}

// CreateTemplate handles POST /api/v1/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}

	tpl, err := h.store.CreateTemplate(c.Request.Context(), req.Name, req.Description, req.Type, req.Steps)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, tpl)
}

// CreateVersionRequest is the payload for POST /templates/:id/versions
type CreateVersionRequest struct {
	Steps []entity.StepDefinition `json:"steps" binding:"required"`
}

// CreateVersion handles POST /api/v1/templates/:id/versions
func (h *Handlers) CreateVersion(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, apperr.Validationf("invalid template id"))
		return
	}

	var req CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}

	version, err := h.store.CreateVersion(c.Request.Context(), id, req.Steps)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, version)
}

// CloneTemplateRequest is the payload for POST /versions/:id/clone
type CloneTemplateRequest struct {
	Name string `json:"name" binding:"required"`
}

// CloneTemplate handles POST /api/v1/versions/:id/clone
func (h *Handlers) CloneTemplate(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, apperr.Validationf("invalid version id"))
		return
	}

	var req CloneTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}

	tpl, err := h.store.CloneTemplate(c.Request.Context(), id, req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, tpl)
}

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	templates, err := h.store.ListTemplates(c.Request.Context(), c.Query("type"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, templates)
}

// DeactivateTemplate handles DELETE /api/v1/templates/:id
func (h *Handlers) DeactivateTemplate(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, apperr.Validationf("invalid template id"))
		return
	}

	if err := h.store.DeactivateTemplate(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "is_active": false})
}

// --- Approval line preview ---

// PreviewRequest is the payload for POST /approval-lines/preview
type PreviewRequest struct {
	TemplateVersionID int64                   `json:"template_version_id"`
	CustomSteps       []entity.StepDefinition `json:"custom_steps"`
	RequesterID       string                  `json:"requester_id"`
}

// PreviewApprovalLine handles POST /api/v1/approval-lines/preview
func (h *Handlers) PreviewApprovalLine(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}

	requesterID := req.RequesterID
	if requesterID == "" {
		requesterID = h.callerID(c)
	}

	steps, err := h.resolver.PreviewApprovalLine(c.Request.Context(), resolver.Source{
		TemplateVersionID: req.TemplateVersionID,
		CustomSteps:       req.CustomSteps,
	}, requesterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, steps)
}

// --- Documents ---

// CreateDocumentRequest is the payload for POST /documents
type CreateDocumentRequest struct {
	Title         string `json:"title" binding:"required"`
	Content       string `json:"content"`
	FormVersionID int64  `json:"form_version_id" binding:"required"`
}

// CreateDocument handles POST /api/v1/documents
func (h *Handlers) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}

	doc, err := h.engine.CreateDocument(c.Request.Context(), req.FormVersionID, req.Title, req.Content, h.callerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, doc)
}

// GetDocument handles GET /api/v1/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, apperr.Validationf("invalid document id"))
		return
	}

	detail, err := h.engine.GetDocument(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, detail)
}

// ListDocuments handles GET /api/v1/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.engine.ListDocuments(c.Request.Context(),
		c.Query("author"), c.Query("status"), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, docs)
}

// UpdateDocumentRequest is the payload for PUT /documents/:id
type UpdateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateDocument handles PUT /api/v1/documents/:id
func (h *Handlers) UpdateDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, apperr.Validationf("invalid document id"))
		return
	}

	var req UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}

	doc, err := h.engine.UpdateDocument(c.Request.Context(), id, req.Title, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/v1/documents/:id
func (h *Handlers) DeleteDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, apperr.Validationf("invalid document id"))
		return
	}

	if err := h.engine.DeleteDocument(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

// SubmitDocumentRequest is the payload for POST /documents/:id/submit
type SubmitDocumentRequest struct {
	TemplateVersionID int64                   `json:"template_version_id"`
	CustomSteps       []entity.StepDefinition `json:"custom_steps"`
}

// SubmitDocument handles POST /api/v1/documents/:id/submit
func (h *Handlers) SubmitDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, apperr.Validationf("invalid document id"))
		return
	}

	var req SubmitDocumentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, apperr.Validationf("invalid request body: %v", err))
			return
		}
	}

	var override *resolver.Source
	if req.TemplateVersionID != 0 || len(req.CustomSteps) > 0 {
		override = &resolver.Source{
			TemplateVersionID: req.TemplateVersionID,
			CustomSteps:       req.CustomSteps,
		}
	}

	detail, err := h.engine.SubmitDocument(c.Request.Context(), id, override)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, detail)
}

// CancelDocumentRequest is the payload for POST /documents/:id/cancel
type CancelDocumentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelDocument handles POST /api/v1/documents/:id/cancel
func (h *Handlers) CancelDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, apperr.Validationf("invalid document id"))
		return
	}

	var req CancelDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validationf("invalid request body: %v", err))
		return
	}

	detail, err := h.engine.CancelDocument(c.Request.Context(), id, h.callerID(c), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, detail)
}

// --- Steps ---

// StepActionRequest is the payload for step transition operations
type StepActionRequest struct {
	Comment    string `json:"comment"`
	ResultData string `json:"result_data"`
}

func (h *Handlers) stepAction(c *gin.Context, fn func(id int64, callerID string, req StepActionRequest) (*engine.StepResult, error)) {
	id, err := pathID(c)
	if err != nil {
		h.respondError(c, apperr.Validationf("invalid snapshot id"))
		return
	}

	var req StepActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, apperr.Validationf("invalid request body: %v", err))
			return
		}
	}

	result, err := fn(id, h.callerID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ApproveStep handles POST /api/v1/steps/:id/approve
func (h *Handlers) ApproveStep(c *gin.Context) {
	h.stepAction(c, func(id int64, callerID string, req StepActionRequest) (*engine.StepResult, error) {
		return h.engine.ApproveStep(c.Request.Context(), id, callerID, req.Comment)
	})
}

// RejectStep handles POST /api/v1/steps/:id/reject
func (h *Handlers) RejectStep(c *gin.Context) {
	h.stepAction(c, func(id int64, callerID string, req StepActionRequest) (*engine.StepResult, error) {
		return h.engine.RejectStep(c.Request.Context(), id, callerID, req.Comment)
	})
}

// CompleteAgreement handles POST /api/v1/steps/:id/agree
func (h *Handlers) CompleteAgreement(c *gin.Context) {
	h.stepAction(c, func(id int64, callerID string, req StepActionRequest) (*engine.StepResult, error) {
		return h.engine.CompleteAgreement(c.Request.Context(), id, callerID, req.Comment)
	})
}

// CompleteImplementation handles POST /api/v1/steps/:id/implement
func (h *Handlers) CompleteImplementation(c *gin.Context) {
	h.stepAction(c, func(id int64, callerID string, req StepActionRequest) (*engine.StepResult, error) {
		return h.engine.CompleteImplementation(c.Request.Context(), id, callerID, req.Comment, req.ResultData)
	})
}
