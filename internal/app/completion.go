package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"mindquake-service/internal/achievements"
	"mindquake-service/internal/domain"
	"mindquake-service/internal/progression"
)

const noticeProgressNotSaved = "progress may not have saved"

// completionRun carries one end-of-quiz completion through the pipeline stages.
type completionRun struct {
	userID     string
	difficulty domain.Difficulty
	correct    int
	total      int
	deltas     map[string]int

	xpEarned int
	user     *domain.User
	updated  domain.User
	totals   map[string]int
	unlocked []domain.UnlockedAchievement
	notices  []string
}

func (r *completionRun) notice(format string, args ...any) {
	r.notices = append(r.notices, fmt.Sprintf(format, args...))
}

type completionStage struct {
	name string
	run  func(s *QuizService, ctx context.Context, r *completionRun) error
}

// completionPipeline runs strictly in this order. Category deltas are written before the
// totals are read back, and achievements are evaluated only against the read-back totals,
// so progress from earlier sessions and from this one are both counted exactly once.
var completionPipeline = []completionStage{
	{name: "award_xp", run: (*QuizService).awardXP},
	{name: "apply_xp", run: (*QuizService).applyXP},
	{name: "persist_category_deltas", run: (*QuizService).persistCategoryDeltas},
	{name: "reload_category_totals", run: (*QuizService).reloadCategoryTotals},
	{name: "unlock_achievements", run: (*QuizService).unlockAchievements},
	{name: "persist_progress", run: (*QuizService).persistProgress},
}

// complete runs every stage. A failing stage is logged and noted on the result; later
// stages still run when their inputs are available.
func (s *QuizService) complete(ctx context.Context, r *completionRun) domain.SessionResult {
	for _, stage := range completionPipeline {
		if err := stage.run(s, ctx, r); err != nil {
			slog.Warn("completion stage failed", "stage", stage.name, "user_id", r.userID, "error", err)
		}
	}

	result := domain.SessionResult{
		XPEarned:       r.xpEarned,
		CorrectCount:   r.correct,
		TotalQuestions: r.total,
		Unlocked:       r.unlocked,
		Notices:        r.notices,
	}
	if result.Unlocked == nil {
		result.Unlocked = []domain.UnlockedAchievement{}
	}
	if r.user != nil {
		result.FinalXP = r.updated.XP
		result.FinalLevel = r.updated.Level
		result.XPToNextLevel = progression.Remaining(r.updated)
	}
	slog.Info("quiz completed",
		"user_id", r.userID,
		"correct", r.correct,
		"total", r.total,
		"xp_earned", r.xpEarned,
		"level", result.FinalLevel,
		"unlocked", len(result.Unlocked),
		"notices", len(result.Notices),
	)
	return result
}

func (s *QuizService) awardXP(_ context.Context, r *completionRun) error {
	rate, ok := r.difficulty.XPRate()
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, r.difficulty)
	}
	r.xpEarned = r.correct * rate
	return nil
}

func (s *QuizService) applyXP(ctx context.Context, r *completionRun) error {
	user, err := s.store.GetUser(ctx, r.userID)
	if err != nil {
		r.notice(noticeProgressNotSaved)
		return fmt.Errorf("load user: %w", err)
	}
	r.user = &user
	r.updated = progression.AddXP(user, r.xpEarned)
	return nil
}

func (s *QuizService) persistCategoryDeltas(ctx context.Context, r *completionRun) error {
	categories := make([]string, 0, len(r.deltas))
	for category := range r.deltas {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var failed []string
	for _, category := range categories {
		if err := s.store.IncrementCategoryStat(ctx, r.userID, category, r.deltas[category]); err != nil {
			slog.Error("persist category delta", "user_id", r.userID, "category", category, "error", err)
			failed = append(failed, category)
		}
	}
	if len(failed) > 0 {
		r.notice("category progress for %s may not have saved", strings.Join(failed, ", "))
		return fmt.Errorf("%d category updates failed", len(failed))
	}
	return nil
}

func (s *QuizService) reloadCategoryTotals(ctx context.Context, r *completionRun) error {
	totals, err := s.store.CategoryStats(ctx, r.userID)
	if err != nil {
		r.notice("achievements could not be checked")
		return fmt.Errorf("reload category totals: %w", err)
	}
	r.totals = achievements.Merge(r.deltas, totals)
	return nil
}

func (s *QuizService) unlockAchievements(ctx context.Context, r *completionRun) error {
	if r.totals == nil {
		return nil
	}
	unlocked, failed := s.unlocker.Unlock(ctx, r.userID, achievements.Evaluate(r.totals))
	r.unlocked = unlocked
	for _, key := range failed {
		r.notice("achievement %s could not be saved", key)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d achievement unlocks failed", len(failed))
	}
	return nil
}

func (s *QuizService) persistProgress(ctx context.Context, r *completionRun) error {
	if r.user == nil {
		return nil
	}
	if err := s.store.UpdateUserProgress(ctx, r.userID, r.updated.XP, r.updated.Level); err != nil {
		r.notice(noticeProgressNotSaved)
		return fmt.Errorf("update user progress: %w", err)
	}
	return nil
}
