package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"mindquake-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions hold in-process state (the answer lock, the shuffled questions), so they live in a
// local map. Redis carries a liveness marker per session with the idle TTL, which lets other
// instances and operators see which sessions are active.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Save(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	// best-effort liveness marker
	if err := s.client.Set(context.Background(), s.key(session.ID()), session.UserID(), s.ttl).Err(); err != nil {
		slog.Warn("mark session live", "session_id", session.ID(), "error", err)
	}
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok && s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(sessionID), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

// Len reports how many sessions are live on this instance.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Prune drops sessions idle since before cutoff and returns their ids.
func (s *SessionStore) Prune(cutoff time.Time) []string {
	s.mu.Lock()
	var pruned []string
	for id, session := range s.sessions {
		if session.LastActivity().Before(cutoff) {
			delete(s.sessions, id)
			pruned = append(pruned, id)
		}
	}
	s.mu.Unlock()

	if len(pruned) > 0 {
		keys := make([]string, 0, len(pruned))
		for _, id := range pruned {
			keys = append(keys, s.key(id))
		}
		_ = s.client.Del(context.Background(), keys...).Err()
	}
	return pruned
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
