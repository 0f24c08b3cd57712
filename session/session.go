package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDeleted   Status = "deleted"
)

// Operable reports whether the session accepts new work.
func (s Status) Operable() bool {
	return s == StatusActive
}

// Thread is one independent execution cursor over a graph. Forked
// threads record their parent thread ID and fork node in Metadata.
type Thread struct {
	ID         string                `json:"id"`
	SessionID  string                `json:"session_id"`
	WorkflowID string                `json:"workflow_id"`
	Status     state.ExecutionStatus `json:"status"`
	State      *state.ExecutionState `json:"state,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	Metadata   map[string]any        `json:"metadata,omitempty"`
}

// ParentThreadID returns the thread this one was forked from, if any.
func (t *Thread) ParentThreadID() string {
	if t.Metadata == nil {
		return ""
	}
	if id, ok := t.Metadata["parent_thread_id"].(string); ok {
		return id
	}
	return ""
}

// Session groups the threads of one conversation or job. MaxThreads
// bounds how many threads the session may hold; zero means unlimited.
type Session struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	MaxThreads int            `json:"max_threads"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	threads map[string]*Thread
}

// ThreadCount returns the number of threads in the session.
func (s *Session) ThreadCount() int {
	return len(s.threads)
}

// Thread returns a thread by ID.
func (s *Session) Thread(id string) (*Thread, bool) {
	t, ok := s.threads[id]
	return t, ok
}

// Threads returns all threads in unspecified order.
func (s *Session) Threads() []*Thread {
	out := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	return out
}

// Manager is an in-memory registry of sessions and their threads.
// All methods are safe for concurrent use; the per-thread single-writer
// discipline for ExecutionState stays with the caller.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewManager builds an empty session manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger.With(zap.String("component", "session_manager")),
	}
}

// CreateSession registers a new active session.
func (m *Manager) CreateSession(name string, maxThreads int) *Session {
	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		Name:       name,
		Status:     StatusActive,
		MaxThreads: maxThreads,
		CreatedAt:  now,
		UpdatedAt:  now,
		threads:    make(map[string]*Thread),
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Debug("session created",
		zap.String("session_id", sess.ID), zap.String("name", name))
	return sess
}

// Session returns a session by ID. Deleted sessions are reported as
// deleted, not as missing, so callers can tell the cases apart.
func (m *Manager) Session(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrSessionDeleted, "session %s not found", id)
	}
	if sess.Status == StatusDeleted {
		return nil, types.NewErrorf(types.ErrSessionDeleted, "session %s is deleted", id)
	}
	return sess, nil
}

// CreateThread adds a fresh pending thread to a session.
func (m *Manager) CreateThread(sessionID, workflowID string) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.operable(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.MaxThreads > 0 && len(sess.threads) >= sess.MaxThreads {
		return nil, types.NewErrorf(types.ErrThreadLimit, "session %s is at its thread limit (%d)", sessionID, sess.MaxThreads)
	}

	thread := &Thread{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		WorkflowID: workflowID,
		Status:     state.ExecutionPending,
		CreatedAt:  time.Now(),
		Metadata:   make(map[string]any),
	}
	sess.threads[thread.ID] = thread
	sess.UpdatedAt = time.Now()
	return thread, nil
}

// SetStatus transitions a session's lifecycle state.
func (m *Manager) SetStatus(sessionID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok || sess.Status == StatusDeleted {
		return types.NewErrorf(types.ErrSessionDeleted, "session %s not found", sessionID)
	}
	sess.Status = status
	sess.UpdatedAt = time.Now()
	return nil
}

// Cancel marks the session cancelled and cancels every non-terminal
// thread, including pending human-relay waits.
func (m *Manager) Cancel(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok || sess.Status == StatusDeleted {
		return types.NewErrorf(types.ErrSessionDeleted, "session %s not found", sessionID)
	}
	sess.Status = StatusCancelled
	sess.UpdatedAt = time.Now()
	for _, t := range sess.threads {
		if !t.Status.Terminal() {
			t.Status = state.ExecutionCancelled
			if t.State != nil {
				t.State.Status = state.ExecutionCancelled
			}
		}
	}
	m.logger.Info("session cancelled", zap.String("session_id", sessionID))
	return nil
}

// Delete tombstones a session. The record stays so later lookups can
// distinguish deleted from never-existed.
func (m *Manager) Delete(sessionID string) error {
	return m.SetStatus(sessionID, StatusDeleted)
}

// operable returns the session if it exists and accepts work.
// Callers must hold m.mu.
func (m *Manager) operable(sessionID string) (*Session, error) {
	sess, ok := m.sessions[sessionID]
	if !ok || sess.Status == StatusDeleted {
		return nil, types.NewErrorf(types.ErrSessionDeleted, "session %s is deleted or does not exist", sessionID)
	}
	if !sess.Status.Operable() {
		return nil, types.NewErrorf(types.ErrSessionNotActive, "session %s is %s", sessionID, sess.Status)
	}
	return sess, nil
}
