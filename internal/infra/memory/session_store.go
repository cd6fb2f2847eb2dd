package memory

import (
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// The latest and joined indexes only hold ids and survive Delete, so swept
// sessions can still be resolved against the results archive.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
	live     map[string]string // quizID -> sessionID
	latest   map[string]string // quizID -> sessionID
	players  map[string]*app.Session
	joined   map[string]string   // playerID -> sessionID
	members  map[string][]string // sessionID -> playerIDs
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
		live:     make(map[string]string),
		latest:   make(map[string]string),
		players:  make(map[string]*app.Session),
		joined:   make(map[string]string),
		members:  make(map[string][]string),
	}
}

func (s *SessionStore) Create(session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID()]; ok {
		return app.ErrDuplicateSession
	}
	if _, ok := s.live[session.QuizID()]; ok {
		return domain.ErrQuizAlreadyRunning
	}
	s.sessions[session.ID()] = session
	s.live[session.QuizID()] = session.ID()
	s.latest[session.QuizID()] = session.ID()
	return nil
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) LiveForQuiz(quizID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.live[quizID]
	if !ok {
		return nil, false
	}
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) LatestForQuiz(quizID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.latest[quizID]
	return id, ok
}

func (s *SessionStore) BindPlayer(playerID string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[playerID] = session
	s.joined[playerID] = session.ID()
	s.members[session.ID()] = append(s.members[session.ID()], playerID)
}

func (s *SessionStore) ForPlayer(playerID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.players[playerID]
	return session, ok
}

func (s *SessionStore) JoinedSession(playerID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.joined[playerID]
	return id, ok
}

func (s *SessionStore) Release(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[session.QuizID()] == session.ID() {
		delete(s.live, session.QuizID())
	}
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(s.sessions, sessionID)
	if s.live[session.QuizID()] == sessionID {
		delete(s.live, session.QuizID())
	}
	for _, playerID := range s.members[sessionID] {
		delete(s.players, playerID)
	}
	delete(s.members, sessionID)
}

func (s *SessionStore) Sessions() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}
