package app

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/costlens/costlens/internal/assistant"
)

// SessionInfo holds metadata about an active assistant session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session was opened.
	StartedAt time.Time
}

// SessionManager tracks the lifecycle of assistant sessions. Each session is
// an independent conversation; the manager hands out new ones and tears them
// all down on shutdown. All exported methods are safe for concurrent use.
type SessionManager struct {
	template assistant.Config

	mu       sync.Mutex
	sessions map[string]*assistant.Session
	started  map[string]time.Time
}

// NewSessionManager creates a SessionManager. template carries the shared
// assistant dependencies; each Open clones it for a fresh session.
func NewSessionManager(template assistant.Config) *SessionManager {
	return &SessionManager{
		template: template,
		sessions: make(map[string]*assistant.Session),
		started:  make(map[string]time.Time),
	}
}

// Open creates and registers a new session.
func (sm *SessionManager) Open() (*assistant.Session, error) {
	s, err := assistant.NewSession(sm.template)
	if err != nil {
		return nil, fmt.Errorf("app: open session: %w", err)
	}

	sm.mu.Lock()
	sm.sessions[s.ID()] = s
	sm.started[s.ID()] = time.Now().UTC()
	sm.mu.Unlock()

	slog.Info("session opened", "session_id", s.ID())
	return s, nil
}

// Get returns the session with the given ID, or false when it is unknown.
func (sm *SessionManager) Get(id string) (*assistant.Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// Close closes and deregisters the session with the given ID.
func (sm *SessionManager) Close(id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	delete(sm.started, id)
	sm.mu.Unlock()

	if !ok {
		return fmt.Errorf("app: unknown session %q", id)
	}
	slog.Info("session closed", "session_id", id)
	return s.Close()
}

// CloseAll closes every registered session. Used during shutdown.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*assistant.Session)
	sm.started = make(map[string]time.Time)
	sm.mu.Unlock()

	for id, s := range sessions {
		if err := s.Close(); err != nil {
			slog.Warn("session close error", "session_id", id, "err", err)
		}
	}
}

// Count returns the number of registered sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// List returns metadata for every registered session, newest first not
// guaranteed; callers sort if they care about order.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for id := range sm.sessions {
		out = append(out, SessionInfo{SessionID: id, StartedAt: sm.started[id]})
	}
	return out
}
