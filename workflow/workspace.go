package workflow

import (
	"context"
	"sync"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

// Validator runs the rule engine over a batch, rewriting each record's
// validation metadata in place.
type Validator interface {
	ValidateBatch(ctx context.Context, records []*models.QuotationRecord) error
}

// Committer persists an approved batch.
type Committer interface {
	Approve(ctx context.Context, records []*models.QuotationRecord, sourceFile string) (ApprovalResult, error)
}

// ApprovalResult reports a successful commit.
type ApprovalResult struct {
	ApprovedCount int   `json:"approved_count"`
	RecordIDs     []int `json:"record_ids"`
}

// DraftStore persists workspace batches across restarts. Lifetime is
// explicit: created on extraction, saved on every mutation, cleared on
// approve or discard.
type DraftStore interface {
	Save(ctx context.Context, id string, records []*models.QuotationRecord) error
	Load(ctx context.Context, id string) ([]*models.QuotationRecord, bool, error)
	Clear(ctx context.Context, id string) error
}

// Workspace is one operator's verification session over an extracted
// batch. All state is guarded by its mutex; at most one revalidation is
// in flight at a time.
type Workspace struct {
	ID         string
	SourceFile string

	mu           sync.Mutex
	records      []*models.QuotationRecord
	state        models.WorkspaceState
	generation   int
	markedIndex  int
	markedRecord *models.QuotationRecord
	revalidating bool

	validator Validator
	committer Committer
	drafts    DraftStore
}

func newWorkspace(id, sourceFile string, records []*models.QuotationRecord, validator Validator, committer Committer, drafts DraftStore) *Workspace {
	return &Workspace{
		ID:          id,
		SourceFile:  sourceFile,
		records:     records,
		state:       models.WorkspaceStateEditing,
		markedIndex: -1,
		validator:   validator,
		committer:   committer,
		drafts:      drafts,
	}
}

// Records returns a deep copy of the current batch.
func (w *Workspace) Records() []*models.QuotationRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneRecords(w.records)
}

func cloneRecords(records []*models.QuotationRecord) []*models.QuotationRecord {
	out := make([]*models.QuotationRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// State reports the current workflow state.
func (w *Workspace) State() models.WorkspaceState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Summary recounts record statuses. Never cached.
func (w *Workspace) Summary() models.ValidationSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return models.SummarizeBatch(w.records)
}

// EditCell writes a raw operator value into one cell. Numeric fields go
// through flexible parsing and keep unparseable input as-is; the edit
// marks the row user modified but leaves its validation metadata alone
// until the next revalidation.
func (w *Workspace) EditCell(ctx context.Context, rowIndex int, field models.RecordField, raw *string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rowIndex < 0 || rowIndex >= len(w.records) {
		return ErrRowOutOfRange
	}
	record := w.records[rowIndex]
	if err := record.SetField(field, raw); err != nil {
		return err
	}
	record.UserModified = true
	w.saveDraftLocked(ctx)
	return nil
}

// MarkForDelete is step one of the two-step delete: it remembers both the
// index and the row's identity so a later confirm cannot remove a
// different row.
func (w *Workspace) MarkForDelete(rowIndex int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rowIndex < 0 || rowIndex >= len(w.records) {
		return ErrRowOutOfRange
	}
	w.markedIndex = rowIndex
	w.markedRecord = w.records[rowIndex]
	return nil
}

// ConfirmDelete removes the marked row. If the batch shifted since the
// mark was set (the row at that index is no longer the marked row), the
// delete is refused and must be re-marked.
func (w *Workspace) ConfirmDelete(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.markedRecord == nil {
		return ErrNoDeleteMark
	}
	idx := w.markedIndex
	if idx < 0 || idx >= len(w.records) || w.records[idx] != w.markedRecord {
		w.markedIndex = -1
		w.markedRecord = nil
		return ErrStaleDeleteMark
	}
	w.records = append(w.records[:idx], w.records[idx+1:]...)
	w.markedIndex = -1
	w.markedRecord = nil
	w.saveDraftLocked(ctx)
	return nil
}

func (w *Workspace) CancelDelete() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.markedIndex = -1
	w.markedRecord = nil
}

// Revalidate runs the rule engine over the whole batch. At most one call
// may be in flight; a second gets ErrRevalidationInFlight. The engine
// works on a deep copy and its result is applied all-or-nothing, and only
// if the batch was not replaced while the engine ran.
func (w *Workspace) Revalidate(ctx context.Context) error {
	w.mu.Lock()
	if w.revalidating {
		w.mu.Unlock()
		return ErrRevalidationInFlight
	}
	if len(w.records) == 0 {
		w.mu.Unlock()
		return ErrEmptyBatch
	}
	w.revalidating = true
	w.state = models.WorkspaceStateRevalidating
	generation := w.generation
	snapshot := cloneRecords(w.records)
	w.mu.Unlock()

	err := w.validator.ValidateBatch(ctx, snapshot)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.revalidating = false
	w.state = models.WorkspaceStateEditing
	if err != nil {
		// batch keeps its last known metadata
		return err
	}
	if w.generation != generation {
		// the batch this response belongs to is gone
		return nil
	}
	w.records = snapshot
	w.saveDraftLocked(ctx)
	return nil
}

// Approve commits the batch. Blocked while any record carries an error
// status; on success the workspace empties and its draft is cleared.
func (w *Workspace) Approve(ctx context.Context) (ApprovalResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.records) == 0 {
		return ApprovalResult{}, ErrEmptyBatch
	}
	summary := models.SummarizeBatch(w.records)
	if summary.Error > 0 {
		return ApprovalResult{}, &ApprovalBlockedError{ErrorCount: summary.Error}
	}

	result, err := w.committer.Approve(ctx, w.records, w.SourceFile)
	if err != nil {
		// typed CommitError from the committer; batch stays intact
		return ApprovalResult{}, err
	}

	w.records = nil
	w.generation++
	w.state = models.WorkspaceStateIdle
	w.markedIndex = -1
	w.markedRecord = nil
	if w.drafts != nil {
		_ = w.drafts.Clear(ctx, w.ID)
	}
	return result, nil
}

// Discard abandons the batch. The generation bump makes any in-flight
// revalidation response stale.
func (w *Workspace) Discard(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = nil
	w.generation++
	w.state = models.WorkspaceStateIdle
	w.markedIndex = -1
	w.markedRecord = nil
	if w.drafts != nil {
		_ = w.drafts.Clear(ctx, w.ID)
	}
}

func (w *Workspace) saveDraftLocked(ctx context.Context) {
	if w.drafts == nil {
		return
	}
	_ = w.drafts.Save(ctx, w.ID, w.records)
}
