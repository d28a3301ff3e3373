package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mindquake-service/internal/domain"
	"mindquake-service/internal/progression"
)

// DefaultLeaderboardSize is how many players a leaderboard shows by default.
const DefaultLeaderboardSize = 10

// ProfileService serves the read side: profile, achievements overview and leaderboard.
type ProfileService struct {
	store ProgressStore
	now   func() time.Time
}

func NewProfileService(store ProgressStore) *ProfileService {
	return &ProfileService{store: store, now: time.Now}
}

// Profile returns the user together with the XP figures of the current level.
func (p *ProfileService) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	user, err := p.store.GetUser(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{
		User:           user,
		XPForNextLevel: progression.RequiredForNextLevel(user.Level),
		XPRemaining:    progression.Remaining(user),
	}, nil
}

// Achievements returns the whole catalog with the user's unlock dates, ordered by
// category and then tier.
func (p *ProfileService) Achievements(ctx context.Context, userID string) ([]domain.AchievementStatus, error) {
	if _, err := p.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	catalog, err := p.store.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	unlocks, err := p.store.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}

	out := make([]domain.AchievementStatus, 0, len(catalog))
	for _, a := range catalog {
		status := domain.AchievementStatus{Achievement: a}
		if at, ok := unlocks[a.ID]; ok {
			status.UnlockedAt = &at
		}
		out = append(out, status)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Tier.Rank() < out[j].Tier.Rank()
	})
	return out, nil
}

// Leaderboard returns the top players by level and in-level XP. When userID is set the
// player's own entry is included even if it is outside the top list.
func (p *ProfileService) Leaderboard(ctx context.Context, userID string, limit int) (domain.Leaderboard, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	top, err := p.store.TopUsers(ctx, limit)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("top users: %w", err)
	}

	lb := domain.Leaderboard{
		Entries:   make([]domain.LeaderboardEntry, 0, len(top)),
		UpdatedAt: p.now(),
	}
	for i, u := range top {
		rank := i + 1
		// Players with identical progress share a rank.
		if i > 0 && top[i-1].Level == u.Level && top[i-1].XP == u.XP {
			rank = lb.Entries[i-1].Rank
		}
		entry := leaderboardEntry(u, rank)
		lb.Entries = append(lb.Entries, entry)
		if u.ID == userID {
			me := entry
			lb.Me = &me
		}
	}

	if userID == "" || lb.Me != nil {
		return lb, nil
	}
	user, err := p.store.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return lb, nil
	}
	if err != nil {
		return domain.Leaderboard{}, err
	}
	rank, err := p.store.UserRank(ctx, userID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("user rank: %w", err)
	}
	me := leaderboardEntry(user, rank)
	lb.Me = &me
	return lb, nil
}

func leaderboardEntry(u domain.User, rank int) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		Rank:        rank,
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Level:       u.Level,
		XP:          u.XP,
	}
}
