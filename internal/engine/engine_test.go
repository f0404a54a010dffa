package engine

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/dispatcher"
	"github.com/garyjia/approval-flow/internal/domain/apperr"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
	"github.com/garyjia/approval-flow/internal/resolver"
)

// fakeStore is an in-memory stand-in for the sqlite repositories. It honors
// the same compare-and-set contract: status updates require the expected
// current status and fail with InvalidState otherwise.
type fakeStore struct {
	mu         sync.Mutex
	docs       map[int64]*entity.Document
	snaps      map[int64]*entity.StepSnapshot
	nextDocID  int64
	nextSnapID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:  make(map[int64]*entity.Document),
		snaps: make(map[int64]*entity.StepSnapshot),
	}
}

type fakeDocumentRepo struct{ store *fakeStore }

func (r *fakeDocumentRepo) Create(tx *sql.Tx, doc *entity.Document) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.nextDocID++
	doc.ID = r.store.nextDocID
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	copy := *doc
	r.store.docs[doc.ID] = &copy
	return nil
}

func (r *fakeDocumentRepo) GetByID(id int64) (*entity.Document, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	doc, ok := r.store.docs[id]
	if !ok {
		return nil, apperr.NotFoundf("document %d not found", id)
	}
	copy := *doc
	return &copy, nil
}

func (r *fakeDocumentRepo) UpdateFields(tx *sql.Tx, id int64, title, content string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	doc, ok := r.store.docs[id]
	if !ok {
		return apperr.NotFoundf("document %d not found", id)
	}
	doc.Title = title
	doc.Content = content
	doc.UpdatedAt = time.Now()
	return nil
}

func (r *fakeDocumentRepo) UpdateStatus(tx *sql.Tx, id int64, fromStatus, toStatus string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	doc, ok := r.store.docs[id]
	if !ok {
		return apperr.NotFoundf("document %d not found", id)
	}
	if doc.Status != fromStatus {
		return apperr.InvalidStatef("document %d status changed concurrently, expected %s", id, fromStatus)
	}
	doc.Status = toStatus
	doc.UpdatedAt = time.Now()
	return nil
}

func (r *fakeDocumentRepo) Delete(tx *sql.Tx, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.docs[id]; !ok {
		return apperr.NotFoundf("document %d not found", id)
	}
	delete(r.store.docs, id)
	return nil
}

func (r *fakeDocumentRepo) List(authorID, status string, limit, offset int) ([]*entity.Document, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.Document
	for _, doc := range r.store.docs {
		if authorID != "" && doc.AuthorID != authorID {
			continue
		}
		if status != "" && doc.Status != status {
			continue
		}
		copy := *doc
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeSnapshotRepo struct{ store *fakeStore }

func (r *fakeSnapshotRepo) CreateAll(tx *sql.Tx, snapshots []*entity.StepSnapshot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range snapshots {
		r.store.nextSnapID++
		s.ID = r.store.nextSnapID
		s.CreatedAt = time.Now()
		copy := *s
		r.store.snaps[s.ID] = &copy
	}
	return nil
}

func (r *fakeSnapshotRepo) GetByID(id int64) (*entity.StepSnapshot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.snaps[id]
	if !ok {
		return nil, apperr.NotFoundf("step snapshot %d not found", id)
	}
	copy := *s
	return &copy, nil
}

func (r *fakeSnapshotRepo) GetByDocumentID(tx *sql.Tx, docID int64) ([]*entity.StepSnapshot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.StepSnapshot
	for _, s := range r.store.snaps {
		if s.DocumentID == docID {
			copy := *s
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StepOrder != out[j].StepOrder {
			return out[i].StepOrder < out[j].StepOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeSnapshotRepo) UpdateStatus(tx *sql.Tx, id int64, toStatus, comment, resultData string, approvedAt *time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.snaps[id]
	if !ok {
		return apperr.NotFoundf("step snapshot %d not found", id)
	}
	if s.Status != entity.StepStatusPending {
		return apperr.InvalidStatef("step snapshot %d already decided", id)
	}
	s.Status = toStatus
	s.Comment = comment
	s.ResultData = resultData
	s.ApprovedAt = approvedAt
	return nil
}

func (r *fakeSnapshotRepo) CancelPending(tx *sql.Tx, docID int64, comment string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.snaps {
		if s.DocumentID == docID && s.Status == entity.StepStatusPending {
			s.Status = entity.StepStatusCancelled
			s.Comment = comment
		}
	}
	return nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTransaction(fn func(*sql.Tx) error) error { return fn(nil) }

type mockResolver struct {
	previewFunc func(ctx context.Context, source resolver.Source, requesterID string) ([]resolver.ResolvedStep, error)
}

func (m *mockResolver) PreviewApprovalLine(ctx context.Context, source resolver.Source, requesterID string) ([]resolver.ResolvedStep, error) {
	if m.previewFunc != nil {
		return m.previewFunc(ctx, source, requesterID)
	}
	return nil, errors.New("previewFunc not set")
}

// recordingDispatcher captures dispatched events synchronously.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) Subscribe(event.Type, dispatcher.Handler) {}

func (d *recordingDispatcher) SubscribeNamed(event.Type, string, dispatcher.Handler) {}

func (d *recordingDispatcher) record(evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.record(evt)
	return nil
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.record(evt)
}

func (d *recordingDispatcher) Close() error { return nil }

func (d *recordingDispatcher) ofType(t event.Type) []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Event
	for _, evt := range d.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type fixture struct {
	engine     *Engine
	store      *fakeStore
	docs       *fakeDocumentRepo
	snaps      *fakeSnapshotRepo
	resolver   *mockResolver
	dispatched *recordingDispatcher
}

func newFixture() *fixture {
	store := newFakeStore()
	docs := &fakeDocumentRepo{store: store}
	snaps := &fakeSnapshotRepo{store: store}
	res := &mockResolver{}
	disp := &recordingDispatcher{}
	return &fixture{
		engine:     New(fakeTxRunner{}, docs, snaps, res, disp, zap.NewNop()),
		store:      store,
		docs:       docs,
		snaps:      snaps,
		resolver:   res,
		dispatched: disp,
	}
}

func resolvedStep(order int, stepType, approverID string) resolver.ResolvedStep {
	return resolver.ResolvedStep{
		StepOrder:    order,
		StepType:     stepType,
		ApproverID:   approverID,
		ApproverName: "name-" + approverID,
		Rule:         entity.AssigneeRule{Kind: entity.RuleFixedEmployee, EmployeeID: approverID},
		IsRequired:   true,
	}
}

func (f *fixture) withLine(steps ...resolver.ResolvedStep) {
	f.resolver.previewFunc = func(ctx context.Context, source resolver.Source, requesterID string) ([]resolver.ResolvedStep, error) {
		return steps, nil
	}
}

// submitted creates and submits a document with the given line, returning the
// document detail after submission.
func (f *fixture) submitted(t *testing.T, steps ...resolver.ResolvedStep) *DocumentDetail {
	t.Helper()
	f.withLine(steps...)

	doc, err := f.engine.CreateDocument(context.Background(), 1, "Budget request", "body", "emp-author")
	require.NoError(t, err)

	detail, err := f.engine.SubmitDocument(context.Background(), doc.ID, nil)
	require.NoError(t, err)
	return detail
}

func TestCreateDocument(t *testing.T) {
	f := newFixture()

	doc, err := f.engine.CreateDocument(context.Background(), 7, "Budget request", "body", "emp-author")
	require.NoError(t, err)

	assert.Equal(t, entity.DocumentStatusDraft, doc.Status)
	assert.Equal(t, int64(7), doc.FormVersionID)
	assert.NotZero(t, doc.ID)
}

func TestCreateDocument_Validation(t *testing.T) {
	f := newFixture()

	_, err := f.engine.CreateDocument(context.Background(), 1, "", "body", "emp-author")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.engine.CreateDocument(context.Background(), 1, "title", "body", "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestUpdateDocument_OnlyDraft(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeApproval, "emp-a"))

	_, err := f.engine.UpdateDocument(context.Background(), detail.Document.ID, "new title", "new body")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestUpdateDocument_Draft(t *testing.T) {
	f := newFixture()

	doc, err := f.engine.CreateDocument(context.Background(), 1, "original", "body", "emp-author")
	require.NoError(t, err)

	updated, err := f.engine.UpdateDocument(context.Background(), doc.ID, "revised", "new body")
	require.NoError(t, err)
	assert.Equal(t, "revised", updated.Title)
	assert.Equal(t, "new body", updated.Content)
}

func TestDeleteDocument_OnlyDraft(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeApproval, "emp-a"))

	err := f.engine.DeleteDocument(context.Background(), detail.Document.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestSubmitDocument(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeAgreement, "emp-a"),
		resolvedStep(2, entity.StepTypeApproval, "emp-b"),
	)

	assert.Equal(t, entity.DocumentStatusInProgress, detail.Document.Status)
	require.Len(t, detail.Snapshots, 2)
	for _, s := range detail.Snapshots {
		assert.Equal(t, entity.StepStatusPending, s.Status)
		assert.Equal(t, detail.Document.ID, s.DocumentID)
	}

	assert.Len(t, f.dispatched.ofType(event.TypeDocumentSubmitted), 1)

	// Only the first step's approver is notified
	activated := f.dispatched.ofType(event.TypeStepActivated)
	require.Len(t, activated, 1)
	assert.Equal(t, detail.Snapshots[0].ID, activated[0].SnapshotID)
}

func TestSubmitDocument_Twice(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeApproval, "emp-a"))

	_, err := f.engine.SubmitDocument(context.Background(), detail.Document.ID, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	// No duplicate snapshots were created
	snaps, err := f.snaps.GetByDocumentID(nil, detail.Document.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestSubmitDocument_NoRequiredSteps(t *testing.T) {
	f := newFixture()
	reference := resolvedStep(1, entity.StepTypeReference, "emp-fyi")

	f.withLine(reference)
	doc, err := f.engine.CreateDocument(context.Background(), 1, "title", "body", "emp-author")
	require.NoError(t, err)

	_, err = f.engine.SubmitDocument(context.Background(), doc.ID, nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	// Document stays DRAFT
	got, err := f.docs.GetByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusDraft, got.Status)
}

func TestSubmitDocument_ResolutionFailureLeavesDraft(t *testing.T) {
	f := newFixture()
	f.resolver.previewFunc = func(ctx context.Context, source resolver.Source, requesterID string) ([]resolver.ResolvedStep, error) {
		return nil, apperr.Unresolvablef("employee gone")
	}

	doc, err := f.engine.CreateDocument(context.Background(), 1, "title", "body", "emp-author")
	require.NoError(t, err)

	_, err = f.engine.SubmitDocument(context.Background(), doc.ID, nil)
	assert.True(t, errors.Is(err, apperr.ErrUnresolvableAssignee))

	got, err := f.docs.GetByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusDraft, got.Status)
}

func TestSubmitDocument_ResolvesForAuthor(t *testing.T) {
	f := newFixture()
	var gotRequester string
	f.resolver.previewFunc = func(ctx context.Context, source resolver.Source, requesterID string) ([]resolver.ResolvedStep, error) {
		gotRequester = requesterID
		return []resolver.ResolvedStep{resolvedStep(1, entity.StepTypeApproval, "emp-a")}, nil
	}

	doc, err := f.engine.CreateDocument(context.Background(), 1, "title", "body", "emp-author")
	require.NoError(t, err)
	_, err = f.engine.SubmitDocument(context.Background(), doc.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, "emp-author", gotRequester)
}

func TestSubmitDocument_NotifiesReferences(t *testing.T) {
	f := newFixture()
	reference := resolver.ResolvedStep{
		StepOrder:  2,
		StepType:   entity.StepTypeReference,
		ApproverID: "emp-fyi",
		Rule:       entity.AssigneeRule{Kind: entity.RuleFixedEmployee, EmployeeID: "emp-fyi"},
		IsRequired: false,
	}
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeApproval, "emp-a"), reference)

	activated := f.dispatched.ofType(event.TypeStepActivated)
	require.Len(t, activated, 2)

	ids := []int64{activated[0].SnapshotID, activated[1].SnapshotID}
	assert.Contains(t, ids, detail.Snapshots[0].ID)
	assert.Contains(t, ids, detail.Snapshots[1].ID)
}

func TestApproveStep_AdvancesToNext(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeAgreement, "emp-a"),
		resolvedStep(2, entity.StepTypeApproval, "emp-b"),
	)

	result, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "looks fine")
	require.NoError(t, err)

	assert.Equal(t, entity.StepStatusApproved, result.Snapshot.Status)
	assert.Equal(t, "looks fine", result.Snapshot.Comment)
	assert.NotNil(t, result.Snapshot.ApprovedAt)
	assert.Equal(t, entity.DocumentStatusInProgress, result.Document.Status)

	// The second step's approver is notified
	activated := f.dispatched.ofType(event.TypeStepActivated)
	require.Len(t, activated, 2)
	assert.Equal(t, detail.Snapshots[1].ID, activated[1].SnapshotID)
}

func TestApproveStep_LastStepApprovesDocument(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeAgreement, "emp-a"),
		resolvedStep(2, entity.StepTypeApproval, "emp-b"),
	)

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	require.NoError(t, err)

	result, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[1].ID, "emp-b", "approved")
	require.NoError(t, err)

	assert.Equal(t, entity.DocumentStatusApproved, result.Document.Status)
	assert.Len(t, f.dispatched.ofType(event.TypeDocumentApproved), 1)
}

func TestApproveStep_OutOfOrder(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeAgreement, "emp-a"),
		resolvedStep(2, entity.StepTypeApproval, "emp-b"),
	)

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[1].ID, "emp-b", "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestApproveStep_WrongCaller(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeApproval, "emp-a"))

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-intruder", "")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "", "")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestApproveStep_AlreadyDecided(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeApproval, "emp-a"),
		resolvedStep(2, entity.StepTypeApproval, "emp-b"),
	)

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	require.NoError(t, err)

	_, err = f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestApproveStep_ImplementationTypeNotAllowed(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeImplementation, "emp-a"))

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestApproveStep_ReferenceNeverActionable(t *testing.T) {
	f := newFixture()
	reference := resolver.ResolvedStep{
		StepOrder:  1,
		StepType:   entity.StepTypeReference,
		ApproverID: "emp-fyi",
		Rule:       entity.AssigneeRule{Kind: entity.RuleFixedEmployee, EmployeeID: "emp-fyi"},
		IsRequired: false,
	}
	detail := f.submitted(t, reference, resolvedStep(2, entity.StepTypeApproval, "emp-a"))

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-fyi", "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestRejectStep_RequiresComment(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeApproval, "emp-a"))

	_, err := f.engine.RejectStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestRejectStep_CascadesToDocument(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeAgreement, "emp-a"),
		resolvedStep(2, entity.StepTypeApproval, "emp-b"),
		resolvedStep(3, entity.StepTypeImplementation, "emp-c"),
	)

	result, err := f.engine.RejectStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "missing receipts")
	require.NoError(t, err)

	assert.Equal(t, entity.StepStatusRejected, result.Snapshot.Status)
	assert.Equal(t, entity.DocumentStatusRejected, result.Document.Status)
	assert.Len(t, f.dispatched.ofType(event.TypeDocumentRejected), 1)

	// Remaining pending steps are cancelled, not left dangling
	snaps, err := f.snaps.GetByDocumentID(nil, detail.Document.ID)
	require.NoError(t, err)
	for _, s := range snaps[1:] {
		assert.Equal(t, entity.StepStatusCancelled, s.Status)
		assert.Equal(t, "document rejected", s.Comment)
	}
}

func TestRejectStep_NoFurtherActionsAfterRejection(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeApproval, "emp-a"),
		resolvedStep(2, entity.StepTypeApproval, "emp-b"),
	)

	_, err := f.engine.RejectStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "no")
	require.NoError(t, err)

	_, err = f.engine.ApproveStep(context.Background(), detail.Snapshots[1].ID, "emp-b", "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestCompleteAgreement_OnlyAgreementSteps(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeApproval, "emp-a"))

	_, err := f.engine.CompleteAgreement(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestCompleteImplementation_StoresResultData(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeApproval, "emp-a"),
		resolvedStep(2, entity.StepTypeImplementation, "emp-b"),
	)

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	require.NoError(t, err)

	result, err := f.engine.CompleteImplementation(context.Background(), detail.Snapshots[1].ID, "emp-b", "done", `{"ticket":"OPS-42"}`)
	require.NoError(t, err)

	assert.Equal(t, entity.StepStatusApproved, result.Snapshot.Status)
	assert.Equal(t, `{"ticket":"OPS-42"}`, result.Snapshot.ResultData)
	assert.Equal(t, entity.DocumentStatusApproved, result.Document.Status)
}

func TestCancelDocument(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeApproval, "emp-a"),
		resolvedStep(2, entity.StepTypeApproval, "emp-b"),
	)

	cancelled, err := f.engine.CancelDocument(context.Background(), detail.Document.ID, "emp-author", "no longer needed")
	require.NoError(t, err)

	assert.Equal(t, entity.DocumentStatusCancelled, cancelled.Document.Status)
	for _, s := range cancelled.Snapshots {
		assert.Equal(t, entity.StepStatusCancelled, s.Status)
		assert.Contains(t, s.Comment, "no longer needed")
	}
	assert.Len(t, f.dispatched.ofType(event.TypeDocumentCancelled), 1)
}

func TestCancelDocument_RequiresReason(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeApproval, "emp-a"))

	_, err := f.engine.CancelDocument(context.Background(), detail.Document.ID, "emp-author", "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCancelDocument_OnlyInProgress(t *testing.T) {
	f := newFixture()

	doc, err := f.engine.CreateDocument(context.Background(), 1, "title", "body", "emp-author")
	require.NoError(t, err)

	_, err = f.engine.CancelDocument(context.Background(), doc.ID, "emp-author", "changed my mind")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestCancelDocument_TerminalStates(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t, resolvedStep(1, entity.StepTypeApproval, "emp-a"))

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	require.NoError(t, err)

	_, err = f.engine.CancelDocument(context.Background(), detail.Document.ID, "emp-author", "too late")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestParallelGroup_BothMustApprove(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeApproval, "emp-a"),
		resolvedStep(1, entity.StepTypeApproval, "emp-b"),
		resolvedStep(2, entity.StepTypeApproval, "emp-c"),
	)

	result, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusInProgress, result.Document.Status)

	// The group is not done, so step 2 is still not actionable
	_, err = f.engine.ApproveStep(context.Background(), detail.Snapshots[2].ID, "emp-c", "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	_, err = f.engine.ApproveStep(context.Background(), detail.Snapshots[1].ID, "emp-b", "")
	require.NoError(t, err)

	result, err = f.engine.ApproveStep(context.Background(), detail.Snapshots[2].ID, "emp-c", "")
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusApproved, result.Document.Status)
}

func TestParallelGroup_AnyRejectionCascades(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeApproval, "emp-a"),
		resolvedStep(1, entity.StepTypeApproval, "emp-b"),
	)

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	require.NoError(t, err)

	result, err := f.engine.RejectStep(context.Background(), detail.Snapshots[1].ID, "emp-b", "not this quarter")
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusRejected, result.Document.Status)
}

// staleSnapshotRepo serves a frozen snapshot set for reads issued before the
// status write, mimicking a transition racing a peer that committed after
// this one's first read.
type staleSnapshotRepo struct {
	*fakeSnapshotRepo
	frozen  []*entity.StepSnapshot
	written bool
}

func (r *staleSnapshotRepo) GetByDocumentID(tx *sql.Tx, docID int64) ([]*entity.StepSnapshot, error) {
	if !r.written {
		out := make([]*entity.StepSnapshot, len(r.frozen))
		for i, s := range r.frozen {
			copy := *s
			out[i] = &copy
		}
		return out, nil
	}
	return r.fakeSnapshotRepo.GetByDocumentID(tx, docID)
}

func (r *staleSnapshotRepo) UpdateStatus(tx *sql.Tx, id int64, toStatus, comment, resultData string, approvedAt *time.Time) error {
	r.written = true
	return r.fakeSnapshotRepo.UpdateStatus(tx, id, toStatus, comment, resultData, approvedAt)
}

func TestParallelGroup_RacingApprovalSeesCommittedPeer(t *testing.T) {
	f := newFixture()
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeApproval, "emp-a"),
		resolvedStep(1, entity.StepTypeApproval, "emp-b"),
	)

	_, err := f.engine.ApproveStep(context.Background(), detail.Snapshots[0].ID, "emp-a", "")
	require.NoError(t, err)

	// The second approval started before the first committed: its initial
	// read still shows the peer pending. The status derived inside the
	// transaction must see the committed peer and approve the document.
	stale := &staleSnapshotRepo{fakeSnapshotRepo: f.snaps, frozen: detail.Snapshots}
	eng := New(fakeTxRunner{}, f.docs, stale, f.resolver, f.dispatched, zap.NewNop())

	result, err := eng.ApproveStep(context.Background(), detail.Snapshots[1].ID, "emp-b", "")
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusApproved, result.Document.Status)
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture()
	reference := resolver.ResolvedStep{
		StepOrder:  4,
		StepType:   entity.StepTypeReference,
		ApproverID: "emp-fyi",
		Rule:       entity.AssigneeRule{Kind: entity.RuleFixedEmployee, EmployeeID: "emp-fyi"},
		IsRequired: false,
	}
	detail := f.submitted(t,
		resolvedStep(1, entity.StepTypeAgreement, "emp-peer"),
		resolvedStep(2, entity.StepTypeApproval, "emp-boss"),
		resolvedStep(3, entity.StepTypeImplementation, "emp-ops"),
		reference,
	)

	_, err := f.engine.CompleteAgreement(context.Background(), detail.Snapshots[0].ID, "emp-peer", "agreed")
	require.NoError(t, err)

	_, err = f.engine.ApproveStep(context.Background(), detail.Snapshots[1].ID, "emp-boss", "approved")
	require.NoError(t, err)

	result, err := f.engine.CompleteImplementation(context.Background(), detail.Snapshots[2].ID, "emp-ops", "provisioned", `{"host":"prod-7"}`)
	require.NoError(t, err)

	assert.Equal(t, entity.DocumentStatusApproved, result.Document.Status)

	// The reference snapshot stays pending; it never gated anything
	snaps, err := f.snaps.GetByDocumentID(nil, detail.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StepStatusPending, snaps[3].Status)

	assert.Len(t, f.dispatched.ofType(event.TypeDocumentApproved), 1)
	assert.Len(t, f.dispatched.ofType(event.TypeStepApproved), 3)
}

func TestListDocuments_Filters(t *testing.T) {
	f := newFixture()
	f.withLine(resolvedStep(1, entity.StepTypeApproval, "emp-a"))

	doc1, err := f.engine.CreateDocument(context.Background(), 1, "one", "", "emp-x")
	require.NoError(t, err)
	_, err = f.engine.CreateDocument(context.Background(), 1, "two", "", "emp-y")
	require.NoError(t, err)
	_, err = f.engine.SubmitDocument(context.Background(), doc1.ID, nil)
	require.NoError(t, err)

	inProgress, err := f.engine.ListDocuments(context.Background(), "", entity.DocumentStatusInProgress, 20, 0)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, doc1.ID, inProgress[0].ID)

	byAuthor, err := f.engine.ListDocuments(context.Background(), "emp-y", "", 20, 0)
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "two", byAuthor[0].Title)
}
