package retry

import (
	"context"
	"time"

	"mindquake-service/internal/app"
	"mindquake-service/internal/domain"
)

// Store retries transient failures of an app.ProgressStore. Every call except
// IncrementCategoryStat is a read or an idempotent write; an increment whose outcome is
// unknown would be counted twice on retry, so it is passed through once.
type Store struct {
	inner  app.ProgressStore
	policy Policy
}

// WrapStore decorates inner with the given policy.
func WrapStore(inner app.ProgressStore, policy Policy) *Store {
	return &Store{inner: inner, policy: policy.withDefaults()}
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return DoValue(ctx, s.policy, func() (domain.User, error) {
		return s.inner.GetUser(ctx, userID)
	})
}

func (s *Store) UpdateUserProgress(ctx context.Context, userID string, xp, level int) error {
	return Do(ctx, s.policy, func() error {
		return s.inner.UpdateUserProgress(ctx, userID, xp, level)
	})
}

func (s *Store) GetCategoryStat(ctx context.Context, userID, category string) (domain.CategoryStat, bool, error) {
	var found bool
	stat, err := DoValue(ctx, s.policy, func() (domain.CategoryStat, error) {
		st, ok, err := s.inner.GetCategoryStat(ctx, userID, category)
		found = ok
		return st, err
	})
	return stat, found, err
}

func (s *Store) IncrementCategoryStat(ctx context.Context, userID, category string, delta int) error {
	return s.inner.IncrementCategoryStat(ctx, userID, category, delta)
}

func (s *Store) CategoryStats(ctx context.Context, userID string) (map[string]int, error) {
	return DoValue(ctx, s.policy, func() (map[string]int, error) {
		return s.inner.CategoryStats(ctx, userID)
	})
}

func (s *Store) AchievementByKey(ctx context.Context, key string) (domain.Achievement, bool, error) {
	var found bool
	a, err := DoValue(ctx, s.policy, func() (domain.Achievement, error) {
		a, ok, err := s.inner.AchievementByKey(ctx, key)
		found = ok
		return a, err
	})
	return a, found, err
}

func (s *Store) HasUnlock(ctx context.Context, userID, achievementID string) (bool, error) {
	return DoValue(ctx, s.policy, func() (bool, error) {
		return s.inner.HasUnlock(ctx, userID, achievementID)
	})
}

func (s *Store) InsertUnlock(ctx context.Context, userID, achievementID string, at time.Time) (bool, error) {
	return DoValue(ctx, s.policy, func() (bool, error) {
		return s.inner.InsertUnlock(ctx, userID, achievementID, at)
	})
}

func (s *Store) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	return DoValue(ctx, s.policy, func() ([]domain.Achievement, error) {
		return s.inner.ListAchievements(ctx)
	})
}

func (s *Store) ListUnlocks(ctx context.Context, userID string) (map[string]time.Time, error) {
	return DoValue(ctx, s.policy, func() (map[string]time.Time, error) {
		return s.inner.ListUnlocks(ctx, userID)
	})
}

func (s *Store) TopUsers(ctx context.Context, limit int) ([]domain.User, error) {
	return DoValue(ctx, s.policy, func() ([]domain.User, error) {
		return s.inner.TopUsers(ctx, limit)
	})
}

func (s *Store) UserRank(ctx context.Context, userID string) (int, error) {
	return DoValue(ctx, s.policy, func() (int, error) {
		return s.inner.UserRank(ctx, userID)
	})
}

var _ app.ProgressStore = (*Store)(nil)
