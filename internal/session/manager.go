// Package session holds per-session orchestration state: the current
// agent mode and workflow focus, the active runbook, and a cached verb
// surface. Adapted from the teacher's internal/shared-dsl/session
// manager (the mutex-guarded Manager/Session map shape, GetOrCreate/
// Get/Delete/CleanupExpired), generalized from that package's
// domain-specific BuiltDSL/Context fields to the session state spec
// §4.11's orchestrator actually needs.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adamtc007/ob-poc-sub006/internal/verbsurface"
)

// Manager tracks every live session, keyed by session ID.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the existing session for sessionID, or creates one.
// An empty sessionID always creates a fresh session with a generated ID.
func (m *Manager) GetOrCreate(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" {
		if s, ok := m.sessions[sessionID]; ok {
			s.touch()
			return s
		}
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	s := &Session{
		ID:         sessionID,
		FailPolicy: verbsurface.FailClosed,
		CreatedAt:  time.Now(),
		LastUsed:   time.Now(),
	}
	m.sessions[sessionID] = s
	return s
}

// Get returns the session for id without creating one.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes a session, e.g. on explicit logout.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// CleanupExpired removes every session whose LastUsed is older than ttl
// and returns how many were removed.
func (m *Manager) CleanupExpired(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, s := range m.sessions {
		s.mu.RLock()
		stale := s.LastUsed.Before(cutoff)
		s.mu.RUnlock()
		if stale {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Session is one user or agent's accumulated orchestration state.
type Session struct {
	ID              string
	AgentMode       string
	StageFocus      string
	ClientGroupID   string
	Persona         string
	EntityState     string
	FailPolicy      verbsurface.VerbSurfaceFailPolicy
	ActiveRunbookID string
	CreatedAt       time.Time
	LastUsed        time.Time

	mu      sync.RWMutex
	surface *verbsurface.SessionVerbSurface
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastUsed = time.Now()
	s.mu.Unlock()
}

// Context builds the VerbSurfaceContext for this session's current state
// under envelope (the SemReg governance response obtained separately by
// the orchestrator, since contacting SemReg is a suspension point the
// session itself does not perform).
func (s *Session) Context(envelope *verbsurface.Envelope) verbsurface.VerbSurfaceContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return verbsurface.VerbSurfaceContext{
		AgentMode:   s.AgentMode,
		StageFocus:  s.StageFocus,
		Envelope:    envelope,
		FailPolicy:  s.FailPolicy,
		EntityState: s.EntityState,
	}
}

// Surface returns the cached verb surface, if one has been computed
// since the last invalidation.
func (s *Session) Surface() (*verbsurface.SessionVerbSurface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.surface == nil {
		return nil, false
	}
	return s.surface, true
}

// SetSurface caches a freshly computed verb surface.
func (s *Session) SetSurface(surface *verbsurface.SessionVerbSurface) {
	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
}

// InvalidateSurface drops the cached surface, forcing the next request
// to recompute it. Called by SetAgentMode, SetStageFocus and
// SetEntityState, whose fields Context derives from.
func (s *Session) InvalidateSurface() {
	s.mu.Lock()
	s.surface = nil
	s.mu.Unlock()
}

// SetAgentMode updates the session's agent mode and invalidates the
// cached surface, since mode is one of the surface's filter inputs.
func (s *Session) SetAgentMode(mode string) {
	s.mu.Lock()
	s.AgentMode = mode
	s.mu.Unlock()
	s.InvalidateSurface()
}

// SetStageFocus updates the session's workflow phase focus.
func (s *Session) SetStageFocus(focus string) {
	s.mu.Lock()
	s.StageFocus = focus
	s.mu.Unlock()
	s.InvalidateSurface()
}

// SetEntityState updates the lifecycle state used by the surface's
// lifecycle filter.
func (s *Session) SetEntityState(state string) {
	s.mu.Lock()
	s.EntityState = state
	s.mu.Unlock()
	s.InvalidateSurface()
}
