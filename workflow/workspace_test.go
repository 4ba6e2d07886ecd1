package workflow

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"bitbucket.org/mmdatafocus/procurement_backend/validation"
)

type fakeValidator struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	started chan struct{}
	err     error
}

func (v *fakeValidator) ValidateBatch(ctx context.Context, records []*models.QuotationRecord) error {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	if v.started != nil {
		close(v.started)
		v.started = nil
	}
	if v.block != nil {
		<-v.block
	}
	if v.err != nil {
		return v.err
	}
	for _, r := range records {
		r.ValidationStatus = models.ValidationStatusValid
		r.ValidationMessage = utils.StringPtr("All fields valid")
	}
	return nil
}

func (v *fakeValidator) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeCommitter struct {
	calls int
	err   error
}

func (c *fakeCommitter) Approve(ctx context.Context, records []*models.QuotationRecord, sourceFile string) (ApprovalResult, error) {
	c.calls++
	if c.err != nil {
		return ApprovalResult{}, c.err
	}
	ids := make([]int, len(records))
	for i := range records {
		ids[i] = i + 1
	}
	return ApprovalResult{ApprovedCount: len(records), RecordIDs: ids}, nil
}

type memoryDraftStore struct {
	mu     sync.Mutex
	drafts map[string][]*models.QuotationRecord
}

func newMemoryDraftStore() *memoryDraftStore {
	return &memoryDraftStore{drafts: map[string][]*models.QuotationRecord{}}
}

func (s *memoryDraftStore) Save(ctx context.Context, id string, records []*models.QuotationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[id] = cloneRecords(records)
	return nil
}

func (s *memoryDraftStore) Load(ctx context.Context, id string) ([]*models.QuotationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.drafts[id]
	if !ok {
		return nil, false, nil
	}
	return cloneRecords(records), true, nil
}

func (s *memoryDraftStore) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
	return nil
}

func batchOf(statuses ...models.ValidationStatus) []*models.QuotationRecord {
	records := make([]*models.QuotationRecord, len(statuses))
	for i, status := range statuses {
		records[i] = &models.QuotationRecord{
			Sku:              utils.StringPtr("SKU-" + string(rune('A'+i))),
			Quantity:         models.NewFlexFromFloat(1),
			UnitPrice:        models.NewFlexFromFloat(10),
			ValidationStatus: status,
		}
	}
	return records
}

func newTestWorkspace(t *testing.T, validator Validator, committer Committer, records []*models.QuotationRecord) *Workspace {
	t.Helper()
	m := NewManager(validator, committer, newMemoryDraftStore())
	return m.Create(context.Background(), "q.xlsx", records)
}

func TestWorkspace_EditKeepsStaleValidation(t *testing.T) {
	ws := newTestWorkspace(t, &fakeValidator{}, &fakeCommitter{},
		batchOf(models.ValidationStatusValid))

	if err := ws.EditCell(context.Background(), 0, models.FieldUnitPrice, utils.StringPtr("1,250.00")); err != nil {
		t.Fatalf("EditCell error: %v", err)
	}

	records := ws.Records()
	if !records[0].UserModified {
		t.Fatal("edited record should be user modified")
	}
	// metadata is stale until the next revalidation, not reset
	if records[0].ValidationStatus != models.ValidationStatusValid {
		t.Fatalf("edit must not touch validation status, got %s", records[0].ValidationStatus)
	}
	if d, ok := records[0].UnitPrice.Decimal(); !ok || d.String() != "1250" {
		t.Fatalf("formatted value should parse, got %v %v", d, ok)
	}
}

func TestWorkspace_EditOutOfRange(t *testing.T) {
	ws := newTestWorkspace(t, &fakeValidator{}, &fakeCommitter{}, batchOf(models.ValidationStatusValid))
	if err := ws.EditCell(context.Background(), 5, models.FieldSku, utils.StringPtr("X")); !errors.Is(err, ErrRowOutOfRange) {
		t.Fatalf("expected ErrRowOutOfRange, got %v", err)
	}
}

func TestWorkspace_TwoStepDelete(t *testing.T) {
	ws := newTestWorkspace(t, &fakeValidator{}, &fakeCommitter{},
		batchOf(models.ValidationStatusValid, models.ValidationStatusWarning, models.ValidationStatusValid))

	if err := ws.ConfirmDelete(context.Background()); !errors.Is(err, ErrNoDeleteMark) {
		t.Fatalf("confirm without mark: expected ErrNoDeleteMark, got %v", err)
	}
	if err := ws.MarkForDelete(1); err != nil {
		t.Fatalf("MarkForDelete error: %v", err)
	}
	if err := ws.ConfirmDelete(context.Background()); err != nil {
		t.Fatalf("ConfirmDelete error: %v", err)
	}
	if got := len(ws.Records()); got != 2 {
		t.Fatalf("expected 2 records after delete, got %d", got)
	}
	// the mark is consumed
	if err := ws.ConfirmDelete(context.Background()); !errors.Is(err, ErrNoDeleteMark) {
		t.Fatalf("second confirm: expected ErrNoDeleteMark, got %v", err)
	}
}

func TestWorkspace_StaleDeleteMarkRefused(t *testing.T) {
	ws := newTestWorkspace(t, &fakeValidator{}, &fakeCommitter{},
		batchOf(models.ValidationStatusValid, models.ValidationStatusValid))

	if err := ws.MarkForDelete(1); err != nil {
		t.Fatalf("MarkForDelete error: %v", err)
	}
	// delete row 0 first so the marked row shifts
	if err := ws.MarkForDelete(0); err != nil {
		t.Fatalf("re-mark error: %v", err)
	}
	if err := ws.ConfirmDelete(context.Background()); err != nil {
		t.Fatalf("ConfirmDelete error: %v", err)
	}
	if err := ws.MarkForDelete(0); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	// simulate a confirm arriving after the batch was replaced underneath it
	ws.mu.Lock()
	ws.records = batchOf(models.ValidationStatusValid)
	ws.mu.Unlock()
	if err := ws.ConfirmDelete(context.Background()); !errors.Is(err, ErrStaleDeleteMark) {
		t.Fatalf("expected ErrStaleDeleteMark, got %v", err)
	}
	if got := len(ws.Records()); got != 1 {
		t.Fatalf("stale confirm must not delete, got %d records", got)
	}
}

func TestWorkspace_CancelDelete(t *testing.T) {
	ws := newTestWorkspace(t, &fakeValidator{}, &fakeCommitter{}, batchOf(models.ValidationStatusValid))
	if err := ws.MarkForDelete(0); err != nil {
		t.Fatalf("MarkForDelete error: %v", err)
	}
	ws.CancelDelete()
	if err := ws.ConfirmDelete(context.Background()); !errors.Is(err, ErrNoDeleteMark) {
		t.Fatalf("expected ErrNoDeleteMark after cancel, got %v", err)
	}
}

func TestWorkspace_RevalidateAppliesResult(t *testing.T) {
	validator := &fakeValidator{}
	ws := newTestWorkspace(t, validator, &fakeCommitter{}, batchOf(models.ValidationStatusPending))

	if err := ws.Revalidate(context.Background()); err != nil {
		t.Fatalf("Revalidate error: %v", err)
	}
	summary := ws.Summary()
	if summary.Valid != 1 || summary.Pending != 0 {
		t.Fatalf("unexpected summary after revalidate: %+v", summary)
	}
	if ws.State() != models.WorkspaceStateEditing {
		t.Fatalf("expected editing state, got %s", ws.State())
	}
}

func TestWorkspace_RevalidateIdempotentWithoutEdits(t *testing.T) {
	// real rule engine: a trivial validator would make equality vacuous
	engine := validation.NewEngine(validation.StaticStats{})
	full := func(sku string) *models.QuotationRecord {
		return &models.QuotationRecord{
			Sku:             utils.StringPtr(sku),
			Distributor:     utils.StringPtr("Alpha Distribution"),
			ItemDescription: utils.StringPtr("Server rack unit"),
			QuoteCurrency:   utils.StringPtr("EUR"),
			SerialNo:        utils.StringPtr("SN-0001"),
			EuCompany:       utils.StringPtr("Acme GmbH"),
			QuotationRefNo:  utils.StringPtr("Q-2026-001"),
			Quantity:        models.NewFlexFromFloat(10),
			UnitPrice:       models.NewFlexFromFloat(100),
			TotalPrice:      models.NewFlexFromFloat(1000),
		}
	}
	records := []*models.QuotationRecord{full("AB"), full("XYZ-200")}
	records[1].UnitPrice = nil // short SKU warning on 0, missing price error on 1
	ws := newTestWorkspace(t, engine, &fakeCommitter{}, records)

	if err := ws.Revalidate(context.Background()); err != nil {
		t.Fatalf("first Revalidate error: %v", err)
	}
	first := ws.Records()
	if err := ws.Revalidate(context.Background()); err != nil {
		t.Fatalf("second Revalidate error: %v", err)
	}
	second := ws.Records()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("consecutive runs without edits must agree:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if first[0].ValidationStatus != models.ValidationStatusWarning {
		t.Fatalf("short SKU should warn, got %s", first[0].ValidationStatus)
	}
	if first[1].ValidationStatus != models.ValidationStatusError {
		t.Fatalf("missing price should error, got %s", first[1].ValidationStatus)
	}
}

func TestWorkspace_UserModifiedSurvivesRevalidation(t *testing.T) {
	ws := newTestWorkspace(t, &fakeValidator{}, &fakeCommitter{},
		batchOf(models.ValidationStatusValid, models.ValidationStatusValid))

	if err := ws.EditCell(context.Background(), 0, models.FieldQuantity, utils.StringPtr("7")); err != nil {
		t.Fatalf("EditCell error: %v", err)
	}
	if err := ws.Revalidate(context.Background()); err != nil {
		t.Fatalf("Revalidate error: %v", err)
	}

	records := ws.Records()
	if !records[0].UserModified {
		t.Fatal("revalidation must not clear the user modified flag")
	}
	if records[1].UserModified {
		t.Fatal("untouched record must stay unmodified")
	}
}

func TestWorkspace_RevalidateSingleFlight(t *testing.T) {
	validator := &fakeValidator{
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	started := validator.started
	block := validator.block
	ws := newTestWorkspace(t, validator, &fakeCommitter{}, batchOf(models.ValidationStatusPending))

	done := make(chan error, 1)
	go func() { done <- ws.Revalidate(context.Background()) }()
	<-started

	if err := ws.Revalidate(context.Background()); !errors.Is(err, ErrRevalidationInFlight) {
		t.Fatalf("expected ErrRevalidationInFlight, got %v", err)
	}
	if ws.State() != models.WorkspaceStateRevalidating {
		t.Fatalf("expected revalidating state, got %s", ws.State())
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first Revalidate error: %v", err)
	}
	// and a fresh call is accepted again
	if err := ws.Revalidate(context.Background()); err != nil {
		t.Fatalf("follow-up Revalidate error: %v", err)
	}
	if validator.callCount() != 2 {
		t.Fatalf("expected 2 validator runs, got %d", validator.callCount())
	}
}

func TestWorkspace_RevalidateFailureKeepsMetadata(t *testing.T) {
	validator := &fakeValidator{err: errors.New("stats lookup down")}
	ws := newTestWorkspace(t, validator, &fakeCommitter{},
		batchOf(models.ValidationStatusWarning))

	if err := ws.Revalidate(context.Background()); err == nil {
		t.Fatal("expected revalidation error")
	}
	records := ws.Records()
	if records[0].ValidationStatus != models.ValidationStatusWarning {
		t.Fatalf("failed run must keep prior metadata, got %s", records[0].ValidationStatus)
	}
	if ws.State() != models.WorkspaceStateEditing {
		t.Fatalf("workspace must return to editing, got %s", ws.State())
	}
}

func TestWorkspace_StaleRevalidationDropped(t *testing.T) {
	validator := &fakeValidator{
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	started := validator.started
	block := validator.block
	ws := newTestWorkspace(t, validator, &fakeCommitter{}, batchOf(models.ValidationStatusPending))

	done := make(chan error, 1)
	go func() { done <- ws.Revalidate(context.Background()) }()
	<-started

	// batch replaced while the engine runs
	ws.Discard(context.Background())
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("stale revalidation should not error: %v", err)
	}
	if got := len(ws.Records()); got != 0 {
		t.Fatalf("stale result must not resurrect the batch, got %d records", got)
	}
	if ws.State() != models.WorkspaceStateEditing {
		t.Fatalf("unexpected state %s", ws.State())
	}
}

func TestWorkspace_ApproveBlockedByErrors(t *testing.T) {
	committer := &fakeCommitter{}
	ws := newTestWorkspace(t, &fakeValidator{}, committer,
		batchOf(models.ValidationStatusValid, models.ValidationStatusError, models.ValidationStatusError))

	_, err := ws.Approve(context.Background())
	var blocked *ApprovalBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected ApprovalBlockedError, got %v", err)
	}
	if blocked.ErrorCount != 2 {
		t.Fatalf("expected 2 blocking errors, got %d", blocked.ErrorCount)
	}
	if committer.calls != 0 {
		t.Fatal("committer must not run for a blocked batch")
	}
	if got := len(ws.Records()); got != 3 {
		t.Fatalf("blocked approval must keep the batch, got %d records", got)
	}
}

func TestWorkspace_ApproveWarningsAllowed(t *testing.T) {
	committer := &fakeCommitter{}
	ws := newTestWorkspace(t, &fakeValidator{}, committer,
		batchOf(models.ValidationStatusValid, models.ValidationStatusWarning))

	result, err := ws.Approve(context.Background())
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if result.ApprovedCount != 2 {
		t.Fatalf("expected 2 approved, got %d", result.ApprovedCount)
	}
	if got := len(ws.Records()); got != 0 {
		t.Fatalf("approved workspace should be empty, got %d records", got)
	}
	if ws.State() != models.WorkspaceStateIdle {
		t.Fatalf("expected idle state, got %s", ws.State())
	}
	if _, err := ws.Approve(context.Background()); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("re-approve of empty workspace: expected ErrEmptyBatch, got %v", err)
	}
}

func TestWorkspace_ApproveCommitFailureKeepsBatch(t *testing.T) {
	committer := &fakeCommitter{err: &CommitError{Stage: "historical", Err: errors.New("db gone")}}
	ws := newTestWorkspace(t, &fakeValidator{}, committer, batchOf(models.ValidationStatusValid))

	_, err := ws.Approve(context.Background())
	var commit *CommitError
	if !errors.As(err, &commit) {
		t.Fatalf("expected CommitError, got %v", err)
	}
	if got := len(ws.Records()); got != 1 {
		t.Fatalf("failed commit must keep the batch, got %d records", got)
	}
}

func TestWorkspace_RecordsReturnsCopies(t *testing.T) {
	ws := newTestWorkspace(t, &fakeValidator{}, &fakeCommitter{}, batchOf(models.ValidationStatusValid))

	records := ws.Records()
	records[0].Sku = utils.StringPtr("TAMPERED")

	if *ws.Records()[0].Sku == "TAMPERED" {
		t.Fatal("Records must return deep copies")
	}
}

func TestManager_RehydratesFromDraftStore(t *testing.T) {
	drafts := newMemoryDraftStore()
	m := NewManager(&fakeValidator{}, &fakeCommitter{}, drafts)

	ws := m.Create(context.Background(), "q.xlsx", batchOf(models.ValidationStatusValid, models.ValidationStatusValid))
	id := ws.ID

	// a restart loses the live registry but not the draft
	m2 := NewManager(&fakeValidator{}, &fakeCommitter{}, drafts)
	restored, err := m2.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get after restart error: %v", err)
	}
	if got := len(restored.Records()); got != 2 {
		t.Fatalf("expected 2 restored records, got %d", got)
	}

	if _, err := m2.Get(context.Background(), "missing"); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Fatalf("expected ErrWorkspaceNotFound, got %v", err)
	}
}

func TestManager_DiscardClearsDraft(t *testing.T) {
	drafts := newMemoryDraftStore()
	m := NewManager(&fakeValidator{}, &fakeCommitter{}, drafts)
	ws := m.Create(context.Background(), "q.xlsx", batchOf(models.ValidationStatusValid))

	if err := m.Discard(context.Background(), ws.ID); err != nil {
		t.Fatalf("Discard error: %v", err)
	}
	if _, err := m.Get(context.Background(), ws.ID); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Fatalf("discarded workspace should be gone, got %v", err)
	}
}
