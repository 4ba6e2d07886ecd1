package workflow

import (
	"context"
	"sync"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/google/uuid"
)

// Manager is the in-memory workspace registry. One workspace per
// verification session, keyed by a generated id.
type Manager struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace

	validator Validator
	committer Committer
	drafts    DraftStore
}

func NewManager(validator Validator, committer Committer, drafts DraftStore) *Manager {
	return &Manager{
		workspaces: map[string]*Workspace{},
		validator:  validator,
		committer:  committer,
		drafts:     drafts,
	}
}

// Create opens a workspace over a freshly extracted batch and persists
// the initial draft.
func (m *Manager) Create(ctx context.Context, sourceFile string, records []*models.QuotationRecord) *Workspace {
	ws := newWorkspace(uuid.NewString(), sourceFile, records, m.validator, m.committer, m.drafts)
	m.mu.Lock()
	m.workspaces[ws.ID] = ws
	m.mu.Unlock()

	if m.drafts != nil {
		_ = m.drafts.Save(ctx, ws.ID, records)
	}
	return ws
}

// Get returns a live workspace, falling back to the draft store when the
// process restarted since the session began.
func (m *Manager) Get(ctx context.Context, id string) (*Workspace, error) {
	m.mu.Lock()
	ws, ok := m.workspaces[id]
	m.mu.Unlock()
	if ok {
		return ws, nil
	}

	if m.drafts != nil {
		records, found, err := m.drafts.Load(ctx, id)
		if err == nil && found {
			sourceFile := ""
			if len(records) > 0 {
				sourceFile = records[0].SourceFile
			}
			ws = newWorkspace(id, sourceFile, records, m.validator, m.committer, m.drafts)
			m.mu.Lock()
			if existing, ok := m.workspaces[id]; ok {
				ws = existing
			} else {
				m.workspaces[id] = ws
			}
			m.mu.Unlock()
			return ws, nil
		}
	}
	return nil, ErrWorkspaceNotFound
}

// Discard abandons and forgets a workspace.
func (m *Manager) Discard(ctx context.Context, id string) error {
	m.mu.Lock()
	ws, ok := m.workspaces[id]
	delete(m.workspaces, id)
	m.mu.Unlock()
	if !ok {
		// a draft may still exist from a previous process
		if m.drafts != nil {
			if _, found, _ := m.drafts.Load(ctx, id); found {
				_ = m.drafts.Clear(ctx, id)
				return nil
			}
		}
		return ErrWorkspaceNotFound
	}
	ws.Discard(ctx)
	return nil
}
