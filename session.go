package main

import (
	"log"
	"sync"
	"time"
)

const maxSessions = 100

// Session is one independent needle sandbox
type Session struct {
	ID   string
	Name string
	Game *Game

	idleTimer *time.Timer
}

// SessionManager handles creation, lookup and idle cleanup of sessions
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	cfg         Config
	journal     *Journal
	idleTimeout time.Duration
}

// NewSessionManager creates a new SessionManager. journal may be nil.
func NewSessionManager(cfg Config, journal *Journal) *SessionManager {
	idle, err := time.ParseDuration(cfg.Sandbox.IdleTimeout)
	if err != nil || idle <= 0 {
		idle = 2 * time.Minute
	}
	return &SessionManager{
		sessions:    make(map[string]*Session),
		cfg:         cfg,
		journal:     journal,
		idleTimeout: idle,
	}
}

// CreateSession creates a new sandbox. Returns nil if limit reached.
// The session is removed if nobody attaches within the idle timeout.
func (sm *SessionManager) CreateSession(name string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= maxSessions {
		return nil
	}

	id := GenerateUUID()
	game := NewGame(sm.cfg, sm.journal.Sink(id))
	sess := &Session{
		ID:   id,
		Name: name,
		Game: game,
	}
	sm.sessions[id] = sess
	sm.armIdle(sess)
	go game.Run()
	log.Printf("session %s (%s) created", id, name)
	return sess
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// MarkActive cancels a pending idle removal
func (sm *SessionManager) MarkActive(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sess, ok := sm.sessions[id]; ok && sess.idleTimer != nil {
		sess.idleTimer.Stop()
		sess.idleTimer = nil
	}
}

// RemoveClient detaches a client and arms idle cleanup once the session
// is empty
func (sm *SessionManager) RemoveClient(sessionID, clientID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		return
	}
	sess.Game.RemoveClient(clientID)
	if sess.Game.ClientCount() == 0 {
		sm.armIdle(sess)
	}
}

// armIdle schedules removal; callers hold sm.mu
func (sm *SessionManager) armIdle(sess *Session) {
	if sess.idleTimer != nil {
		sess.idleTimer.Stop()
	}
	sess.idleTimer = time.AfterFunc(sm.idleTimeout, func() {
		sm.removeIfIdle(sess.ID)
	})
}

func (sm *SessionManager) removeIfIdle(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sess, ok := sm.sessions[id]
	if !ok || sess.Game.ClientCount() > 0 {
		return
	}
	sess.Game.Stop()
	delete(sm.sessions, id)
	log.Printf("session %s removed after idle timeout", id)
}

// ListSessions returns info about all active sessions
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]SessionInfo, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		list = append(list, SessionInfo{
			ID:      sess.ID,
			Name:    sess.Name,
			Clients: sess.Game.ClientCount(),
		})
	}
	return list
}

// StopAll halts every sandbox loop
func (sm *SessionManager) StopAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, sess := range sm.sessions {
		if sess.idleTimer != nil {
			sess.idleTimer.Stop()
		}
		sess.Game.Stop()
		delete(sm.sessions, id)
	}
}
