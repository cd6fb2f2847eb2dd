package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions themselves stay in the local memory store; Redis holds:
//   - quiz:{quizID}:live      the one live session of a quiz (SETNX), shared across instances
//   - quiz:{quizID}:latest    the most recent session of a quiz
//   - quiz:player:{playerID}  the session a player joined
//
// The latest and player keys outlive Delete and expire with the TTL, so any
// instance can resolve a swept session against the results archive.
type SessionStore struct {
	*memory.SessionStore
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		SessionStore: memory.NewSessionStore(),
		client:       client,
		ttl:          ttl,
	}
}

func (s *SessionStore) Create(session *app.Session) error {
	ctx := context.Background()
	ok, err := s.client.SetNX(ctx, s.liveKey(session.QuizID()), session.ID(), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("mark live session: %w", err)
	}
	if !ok {
		return domain.ErrQuizAlreadyRunning
	}
	if err := s.SessionStore.Create(session); err != nil {
		_ = s.client.Del(ctx, s.liveKey(session.QuizID())).Err()
		return err
	}
	_ = s.client.Set(ctx, s.latestKey(session.QuizID()), session.ID(), s.ttl).Err()
	return nil
}

// LatestForQuiz prefers the local index and falls back to Redis.
func (s *SessionStore) LatestForQuiz(quizID string) (string, bool) {
	if id, ok := s.SessionStore.LatestForQuiz(quizID); ok {
		return id, true
	}
	return s.lookup(s.latestKey(quizID))
}

func (s *SessionStore) BindPlayer(playerID string, session *app.Session) {
	s.SessionStore.BindPlayer(playerID, session)
	_ = s.client.Set(context.Background(), s.playerKey(playerID), session.ID(), s.ttl).Err()
}

// JoinedSession prefers the local index and falls back to Redis.
func (s *SessionStore) JoinedSession(playerID string) (string, bool) {
	if id, ok := s.SessionStore.JoinedSession(playerID); ok {
		return id, true
	}
	return s.lookup(s.playerKey(playerID))
}

func (s *SessionStore) lookup(key string) (string, bool) {
	id, err := s.client.Get(context.Background(), key).Result()
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

func (s *SessionStore) Release(session *app.Session) {
	s.SessionStore.Release(session)
	s.releaseLive(context.Background(), session)
}

func (s *SessionStore) Delete(sessionID string) {
	session, ok := s.SessionStore.Get(sessionID)
	s.SessionStore.Delete(sessionID)
	if !ok {
		return
	}
	s.releaseLive(context.Background(), session)
}

// releaseLive deletes the live marker only if it still names this session.
func (s *SessionStore) releaseLive(ctx context.Context, session *app.Session) {
	key := s.liveKey(session.QuizID())
	if owner, err := s.client.Get(ctx, key).Result(); err == nil && owner == session.ID() {
		_ = s.client.Del(ctx, key).Err()
	}
}

func (s *SessionStore) liveKey(quizID string) string {
	return "quiz:" + quizID + ":live"
}

func (s *SessionStore) latestKey(quizID string) string {
	return "quiz:" + quizID + ":latest"
}

func (s *SessionStore) playerKey(playerID string) string {
	return "quiz:player:" + playerID
}
