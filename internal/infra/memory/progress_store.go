package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mindquake-service/internal/domain"
)

// ProgressStore is an in-memory implementation of app.ProgressStore. Unlock records are
// keyed by (user, achievement), so uniqueness is enforced the same way the database does.
type ProgressStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	stats   map[string]map[string]int
	catalog map[string]domain.Achievement // by key
	unlocks map[unlockKey]time.Time
}

type unlockKey struct {
	userID        string
	achievementID string
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		users:   make(map[string]domain.User),
		stats:   make(map[string]map[string]int),
		catalog: make(map[string]domain.Achievement),
		unlocks: make(map[unlockKey]time.Time),
	}
}

// PutUser inserts or replaces a user record. Level defaults to 1.
func (s *ProgressStore) PutUser(u domain.User) {
	if u.Level < 1 {
		u.Level = 1
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutAchievements loads catalog entries, replacing entries with the same key.
func (s *ProgressStore) PutAchievements(list []domain.Achievement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range list {
		s.catalog[a.Key] = a
	}
}

func (s *ProgressStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *ProgressStore) UpdateUserProgress(_ context.Context, userID string, xp, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.XP = xp
	u.Level = level
	s.users[userID] = u
	return nil
}

func (s *ProgressStore) GetCategoryStat(_ context.Context, userID, category string) (domain.CategoryStat, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	correct, ok := s.stats[userID][category]
	if !ok {
		return domain.CategoryStat{}, false, nil
	}
	return domain.CategoryStat{UserID: userID, Category: category, CorrectAnswers: correct}, true, nil
}

func (s *ProgressStore) IncrementCategoryStat(_ context.Context, userID, category string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	if s.stats[userID] == nil {
		s.stats[userID] = make(map[string]int)
	}
	s.stats[userID][category] += delta
	return nil
}

func (s *ProgressStore) CategoryStats(_ context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.stats[userID]))
	for k, v := range s.stats[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *ProgressStore) AchievementByKey(_ context.Context, key string) (domain.Achievement, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.catalog[key]
	return a, ok, nil
}

func (s *ProgressStore) HasUnlock(_ context.Context, userID, achievementID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.unlocks[unlockKey{userID, achievementID}]
	return ok, nil
}

func (s *ProgressStore) InsertUnlock(_ context.Context, userID, achievementID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := unlockKey{userID, achievementID}
	if _, ok := s.unlocks[k]; ok {
		return false, nil
	}
	s.unlocks[k] = at
	return true, nil
}

func (s *ProgressStore) ListAchievements(_ context.Context) ([]domain.Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Achievement, 0, len(s.catalog))
	for _, a := range s.catalog {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *ProgressStore) ListUnlocks(_ context.Context, userID string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time)
	for k, at := range s.unlocks {
		if k.userID == userID {
			out[k.achievementID] = at
		}
	}
	return out, nil
}

func (s *ProgressStore) TopUsers(_ context.Context, limit int) ([]domain.User, error) {
	s.mu.RLock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.RUnlock()

	// Level desc, then in-level XP desc; ties go to whoever signed up first, then name.
	sort.Slice(users, func(i, j int) bool {
		if users[i].Level != users[j].Level {
			return users[i].Level > users[j].Level
		}
		if users[i].XP != users[j].XP {
			return users[i].XP > users[j].XP
		}
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].DisplayName < users[j].DisplayName
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *ProgressStore) UserRank(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	me, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	ahead := 0
	for _, u := range s.users {
		if u.Level > me.Level || (u.Level == me.Level && u.XP > me.XP) {
			ahead++
		}
	}
	return ahead + 1, nil
}
