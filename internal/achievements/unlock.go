package achievements

import (
	"context"
	"log/slog"
	"time"

	"mindquake-service/internal/domain"
)

// UnlockStore is the slice of the remote store the coordinator needs.
// InsertUnlock must be insert-if-absent: it reports false, not an error, when the
// (user, achievement) pair already exists.
type UnlockStore interface {
	AchievementByKey(ctx context.Context, key string) (domain.Achievement, bool, error)
	HasUnlock(ctx context.Context, userID, achievementID string) (bool, error)
	InsertUnlock(ctx context.Context, userID, achievementID string, at time.Time) (bool, error)
}

// Coordinator persists newly earned achievements at most once per user.
type Coordinator struct {
	store UnlockStore
	now   func() time.Time
}

func NewCoordinator(store UnlockStore) *Coordinator {
	return NewCoordinatorWithClock(store, time.Now)
}

// NewCoordinatorWithClock allows deterministic unlock timestamps in tests.
func NewCoordinatorWithClock(store UnlockStore, now func() time.Time) *Coordinator {
	return &Coordinator{store: store, now: now}
}

// Unlock records every satisfied key the user has not unlocked yet and returns the
// achievements unlocked by this call. Keys missing from the catalog and keys already
// unlocked are skipped silently. A store failure on one key is logged, reported in
// failed, and does not stop the remaining keys.
func (c *Coordinator) Unlock(ctx context.Context, userID string, keys []string) (unlocked []domain.UnlockedAchievement, failed []string) {
	unlocked = []domain.UnlockedAchievement{}
	for _, key := range keys {
		achievement, ok, err := c.store.AchievementByKey(ctx, key)
		if err != nil {
			slog.Error("lookup achievement", "achievement_key", key, "error", err)
			failed = append(failed, key)
			continue
		}
		if !ok {
			continue
		}

		exists, err := c.store.HasUnlock(ctx, userID, achievement.ID)
		if err != nil {
			slog.Error("check unlock", "user_id", userID, "achievement_key", key, "error", err)
			failed = append(failed, key)
			continue
		}
		if exists {
			continue
		}

		at := c.now().UTC()
		inserted, err := c.store.InsertUnlock(ctx, userID, achievement.ID, at)
		if err != nil {
			slog.Error("insert unlock", "user_id", userID, "achievement_key", key, "error", err)
			failed = append(failed, key)
			continue
		}
		if !inserted {
			// Lost a race with a concurrent completion; the other one reports it.
			continue
		}

		slog.Info("achievement unlocked", "user_id", userID, "achievement_key", key)
		unlocked = append(unlocked, domain.UnlockedAchievement{Achievement: achievement, UnlockedAt: at})
	}
	return unlocked, failed
}
