package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mindquake-service/internal/domain"
)

const foreignKeyViolation = "23503"

// ProgressStore keeps users, category stats, the achievement catalog and unlock records in
// Postgres. Uniqueness of unlocks and stats is enforced by primary keys, not by callers.
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

// UpsertUser creates a player or refreshes its display fields. Progress is left untouched.
func (s *ProgressStore) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url`,
		u.ID, u.DisplayName, u.AvatarURL)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *ProgressStore) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, avatar_url, xp, level, created_at
		FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.XP, &u.Level, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *ProgressStore) UpdateUserProgress(ctx context.Context, userID string, xp, level int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET xp = $2, level = $3 WHERE id = $1`, userID, xp, level)
	if err != nil {
		return fmt.Errorf("update user progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *ProgressStore) GetCategoryStat(ctx context.Context, userID, category string) (domain.CategoryStat, bool, error) {
	stat := domain.CategoryStat{UserID: userID, Category: category}
	err := s.pool.QueryRow(ctx, `
		SELECT correct_answers FROM category_stats WHERE user_id = $1 AND category = $2`,
		userID, category).Scan(&stat.CorrectAnswers)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CategoryStat{}, false, nil
	}
	if err != nil {
		return domain.CategoryStat{}, false, fmt.Errorf("get category stat: %w", err)
	}
	return stat, true, nil
}

// IncrementCategoryStat inserts the stat or adds delta to it in one statement.
func (s *ProgressStore) IncrementCategoryStat(ctx context.Context, userID, category string, delta int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO category_stats (user_id, category, correct_answers, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, category) DO UPDATE
		SET correct_answers = category_stats.correct_answers + EXCLUDED.correct_answers,
		    updated_at = now()`,
		userID, category, delta)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("increment category stat: %w", err)
	}
	return nil
}

func (s *ProgressStore) CategoryStats(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, correct_answers FROM category_stats WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var category string
		var correct int
		if err := rows.Scan(&category, &correct); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}
		out[category] = correct
	}
	return out, rows.Err()
}

func (s *ProgressStore) AchievementByKey(ctx context.Context, key string) (domain.Achievement, bool, error) {
	var a domain.Achievement
	var tier string
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, key, name, icon, category, tier FROM achievements WHERE key = $1`, key).
		Scan(&a.ID, &a.Key, &a.Name, &a.Icon, &a.Category, &tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Achievement{}, false, nil
	}
	if err != nil {
		return domain.Achievement{}, false, fmt.Errorf("achievement by key: %w", err)
	}
	a.Tier = domain.Tier(tier)
	return a, true, nil
}

func (s *ProgressStore) HasUnlock(ctx context.Context, userID, achievementID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_achievements WHERE user_id = $1 AND achievement_id = $2::uuid)`,
		userID, achievementID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has unlock: %w", err)
	}
	return exists, nil
}

// InsertUnlock reports false when the pair already exists; the primary key decides races.
func (s *ProgressStore) InsertUnlock(ctx context.Context, userID, achievementID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, unlocked_at)
		VALUES ($1, $2::uuid, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		userID, achievementID, at)
	if err != nil {
		return false, fmt.Errorf("insert unlock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *ProgressStore) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, key, name, icon, category, tier FROM achievements ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var out []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		var tier string
		if err := rows.Scan(&a.ID, &a.Key, &a.Name, &a.Icon, &a.Category, &tier); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		a.Tier = domain.Tier(tier)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *ProgressStore) ListUnlocks(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT achievement_id::text, unlocked_at FROM user_achievements WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan unlock: %w", err)
		}
		out[id] = at.UTC()
	}
	return out, rows.Err()
}

func (s *ProgressStore) TopUsers(ctx context.Context, limit int) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, avatar_url, xp, level, created_at
		FROM users
		ORDER BY level DESC, xp DESC, created_at ASC, display_name ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.XP, &u.Level, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UserRank is one more than the number of players strictly ahead, so ties share a rank.
func (s *ProgressStore) UserRank(ctx context.Context, userID string) (int, error) {
	var level, xp int
	err := s.pool.QueryRow(ctx, `SELECT level, xp FROM users WHERE id = $1`, userID).Scan(&level, &xp)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("user rank: %w", err)
	}

	var ahead int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM users WHERE level > $1 OR (level = $1 AND xp > $2)`, level, xp).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("user rank: %w", err)
	}
	return ahead + 1, nil
}
