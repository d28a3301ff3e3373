package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"mindquake-service/internal/app"
	"mindquake-service/internal/catalog"
	"mindquake-service/internal/domain"
	"mindquake-service/internal/infra/memory"
)

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestPerfectEasyQuizLevelsUpAndUnlocksBronze(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	service := newTestService(store)

	result := playQuiz(t, service, "u1", 5, true)

	if result.XPEarned != 250 {
		t.Fatalf("expected 250 xp earned, got %d", result.XPEarned)
	}
	if result.FinalLevel != 2 || result.FinalXP != 0 {
		t.Fatalf("expected level 2 with 0 xp, got level %d xp %d", result.FinalLevel, result.FinalXP)
	}
	if result.XPToNextLevel != 500 {
		t.Fatalf("expected 500 xp to next level, got %d", result.XPToNextLevel)
	}
	if len(result.Unlocked) != 1 || result.Unlocked[0].Key != "science_bronze" {
		t.Fatalf("expected science_bronze unlocked, got %+v", result.Unlocked)
	}
	if len(result.Notices) != 0 {
		t.Fatalf("expected no notices, got %v", result.Notices)
	}

	user, _ := store.GetUser(ctx, "u1")
	if user.Level != 2 || user.XP != 0 {
		t.Fatalf("expected persisted level 2 xp 0, got %+v", user)
	}
	stat, ok, _ := store.GetCategoryStat(ctx, "u1", "science")
	if !ok || stat.CorrectAnswers != 5 {
		t.Fatalf("expected 5 science answers persisted, got %+v", stat)
	}
}

func TestSecondQuizUnlocksOnlyNextTier(t *testing.T) {
	store := newTestStore()
	service := newTestService(store)

	playQuiz(t, service, "u1", 5, true)
	result := playQuiz(t, service, "u1", 5, true)

	if len(result.Unlocked) != 1 || result.Unlocked[0].Key != "science_silver" {
		t.Fatalf("expected only science_silver, got %+v", result.Unlocked)
	}
	if result.FinalLevel != 2 || result.FinalXP != 250 {
		t.Fatalf("expected level 2 with 250 xp, got level %d xp %d", result.FinalLevel, result.FinalXP)
	}
}

func TestWrongAnswersEarnNothing(t *testing.T) {
	store := newTestStore()
	service := newTestService(store)

	result := playQuiz(t, service, "u1", 5, false)

	if result.XPEarned != 0 || result.CorrectCount != 0 {
		t.Fatalf("expected nothing earned, got %+v", result)
	}
	if result.FinalLevel != 1 {
		t.Fatalf("expected level 1, got %d", result.FinalLevel)
	}
	if result.Unlocked == nil || len(result.Unlocked) != 0 {
		t.Fatalf("expected empty unlock list, got %v", result.Unlocked)
	}
}

func TestStartWithEmptyPoolsFailsToLoad(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionStore()
	store := newTestStore()
	service := app.NewQuizService(sessions, memory.NewQuestionCache(memory.NewStaticPoolLoader(nil), time.Minute), store)

	view, err := service.Start(ctx, "u1", domain.QuizConfig{Categories: []string{"17"}, Count: 5, Difficulty: domain.DifficultyEasy})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.State != app.StateLoadFailed {
		t.Fatalf("expected load_failed, got %s", view.State)
	}
	if view.Reason == "" {
		t.Fatalf("expected a reason")
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected failed session to be discarded")
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()
	service := newTestService(newTestStore())

	cases := []struct {
		name string
		cfg  domain.QuizConfig
		want error
	}{
		{"unknown difficulty", domain.QuizConfig{Categories: []string{"17"}, Count: 5, Difficulty: "extreme"}, domain.ErrInvalidDifficulty},
		{"zero count", domain.QuizConfig{Categories: []string{"17"}, Count: 0, Difficulty: domain.DifficultyEasy}, domain.ErrInvalidQuizConfig},
		{"no categories", domain.QuizConfig{Categories: []string{" "}, Count: 5, Difficulty: domain.DifficultyEasy}, domain.ErrInvalidQuizConfig},
		{"too many", domain.QuizConfig{Categories: []string{"17"}, Count: 500, Difficulty: domain.DifficultyEasy}, domain.ErrInvalidQuizConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Start(ctx, "u1", tc.cfg)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	_, err := service.Start(ctx, "ghost", domain.QuizConfig{Categories: []string{"17"}, Count: 5, Difficulty: domain.DifficultyEasy})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestAnswerUnknownAndClosedSessions(t *testing.T) {
	ctx := context.Background()
	service := newTestService(newTestStore())

	if _, err := service.Answer(ctx, "missing", "x"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}

	view, err := service.Start(ctx, "u1", domain.QuizConfig{Categories: []string{"17"}, Count: 2, Difficulty: domain.DifficultyEasy})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.Abort(ctx, view.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if _, err := service.Answer(ctx, view.ID, "x"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected aborted session to be gone, got %v", err)
	}
	if _, err := service.Get(ctx, view.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected get to fail after abort, got %v", err)
	}
}

func TestAnswerWhileCompletionRunsIsRejected(t *testing.T) {
	ctx := context.Background()
	store := &blockingStore{
		ProgressStore: newTestStore(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	sessions := memory.NewSessionStore()
	service := app.NewQuizService(sessions, newTestQuestions(), store,
		app.WithClock(func() time.Time { return fixedNow }),
		app.WithRand(rand.New(rand.NewSource(1))),
		app.WithIDGenerator(func() string { return "s1" }),
	)

	view, err := service.Start(ctx, "u1", domain.QuizConfig{Categories: []string{"17"}, Count: 1, Difficulty: domain.DifficultyEasy})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan app.AnswerOutcome)
	go func() {
		outcome, _ := service.Answer(ctx, view.ID, correctAnswer(view.Question.Prompt))
		done <- outcome
	}()

	<-store.entered
	if _, err := service.Answer(ctx, view.ID, "again"); !errors.Is(err, domain.ErrAnswerInFlight) {
		t.Fatalf("expected answer in flight, got %v", err)
	}
	close(store.release)

	outcome := <-done
	if outcome.State != app.StateFinished || outcome.Result == nil {
		t.Fatalf("expected finished outcome, got %+v", outcome)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected finished session to be discarded")
	}
}

func TestCompletionSurvivesStoreFailures(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{ProgressStore: newTestStore(), failIncrement: true}
	service := newTestService(store)

	result := playQuiz(t, service, "u1", 5, true)

	if result.FinalLevel != 2 {
		t.Fatalf("expected xp still applied, got level %d", result.FinalLevel)
	}
	if !hasNotice(result.Notices, "category progress for science") {
		t.Fatalf("expected category notice, got %v", result.Notices)
	}
	// The store never saw the increment, so the session count stands in for the total.
	if len(result.Unlocked) != 1 || result.Unlocked[0].Key != "science_bronze" {
		t.Fatalf("expected science_bronze from session count, got %+v", result.Unlocked)
	}

	store.failIncrement = false
	store.failUpdate = true
	result = playQuiz(t, service, "u1", 5, true)
	if !hasNotice(result.Notices, "progress may not have saved") {
		t.Fatalf("expected progress notice, got %v", result.Notices)
	}
	user, _ := store.GetUser(ctx, "u1")
	if user.Level != 2 || user.XP != 0 {
		t.Fatalf("expected user unchanged by failed update, got %+v", user)
	}
}

func TestCompletionSkipsAchievementsWhenTotalsUnavailable(t *testing.T) {
	store := &flakyStore{ProgressStore: newTestStore(), failStats: true}
	service := newTestService(store)

	result := playQuiz(t, service, "u1", 5, true)

	if len(result.Unlocked) != 0 {
		t.Fatalf("expected no unlocks, got %+v", result.Unlocked)
	}
	if !hasNotice(result.Notices, "achievements could not be checked") {
		t.Fatalf("expected achievements notice, got %v", result.Notices)
	}
	if result.FinalLevel != 2 {
		t.Fatalf("expected xp applied, got level %d", result.FinalLevel)
	}
}

func TestCompletionOutlivesCancelledCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{ProgressStore: newTestStore(), cancel: cancel}
	service := newTestService(store)

	view, err := service.Start(ctx, "u1", domain.QuizConfig{Categories: []string{"17"}, Count: 5, Difficulty: domain.DifficultyEasy})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	question := view.Question
	var result *domain.SessionResult
	for i := 0; i < view.Total && result == nil; i++ {
		outcome, err := service.Answer(ctx, view.ID, correctAnswer(question.Prompt))
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		question, result = outcome.Next, outcome.Result
	}
	if result == nil {
		t.Fatalf("quiz did not finish")
	}
	if ctx.Err() == nil {
		t.Fatalf("expected the caller context to be cancelled during completion")
	}
	if len(result.Notices) != 0 {
		t.Fatalf("expected a clean completion, got notices %v", result.Notices)
	}

	user, _ := store.ProgressStore.GetUser(context.Background(), "u1")
	if user.Level != 2 || user.XP != 0 {
		t.Fatalf("expected level 2 persisted, got %+v", user)
	}
	if len(result.Unlocked) != 1 || result.Unlocked[0].Key != "science_bronze" {
		t.Fatalf("expected science_bronze, got %+v", result.Unlocked)
	}
}

func TestQuestionsAreDedupedAndAnswersShuffled(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	pool := sciencePool()
	questions := memory.NewQuestionCache(memory.NewStaticPoolLoader(map[string][]domain.Question{
		"17": pool,
		"18": pool[:3],
	}), time.Minute)
	service := app.NewQuizService(memory.NewSessionStore(), questions, store, app.WithRand(rand.New(rand.NewSource(7))))

	view, err := service.Start(ctx, "u1", domain.QuizConfig{Categories: []string{"17", "18"}, Count: 50, Difficulty: domain.DifficultyEasy})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Total != len(pool) {
		t.Fatalf("expected %d unique questions, got %d", len(pool), view.Total)
	}
	if len(view.Question.Answers) != 4 {
		t.Fatalf("expected 4 answer choices, got %v", view.Question.Answers)
	}
}

func playQuiz(t *testing.T, service *app.QuizService, userID string, count int, correctly bool) domain.SessionResult {
	t.Helper()
	ctx := context.Background()

	view, err := service.Start(ctx, userID, domain.QuizConfig{Categories: []string{"17"}, Count: count, Difficulty: domain.DifficultyEasy})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.State != app.StateInProgress {
		t.Fatalf("expected in_progress, got %s (%s)", view.State, view.Reason)
	}

	question := view.Question
	for i := 0; i < view.Total; i++ {
		answer := "nope"
		if correctly {
			answer = correctAnswer(question.Prompt)
		}
		outcome, err := service.Answer(ctx, view.ID, answer)
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if outcome.Correct != correctly {
			t.Fatalf("answer %d: expected correct=%v", i, correctly)
		}
		if outcome.Result != nil {
			return *outcome.Result
		}
		question = outcome.Next
	}
	t.Fatalf("quiz did not finish")
	return domain.SessionResult{}
}

func newTestService(store app.ProgressStore) *app.QuizService {
	return app.NewQuizService(memory.NewSessionStore(), newTestQuestions(), store,
		app.WithClock(func() time.Time { return fixedNow }),
		app.WithRand(rand.New(rand.NewSource(1))),
	)
}

func newTestStore() *memory.ProgressStore {
	store := memory.NewProgressStore()
	store.PutUser(domain.User{ID: "u1", DisplayName: "Alice", CreatedAt: fixedNow})
	store.PutAchievements(catalog.File{
		IconPattern: "/icons/%s.png",
		Categories:  []catalog.Category{{Name: "Science"}, {Name: "History"}},
	}.Achievements())
	return store
}

func newTestQuestions() *memory.QuestionCache {
	return memory.NewQuestionCache(memory.NewStaticPoolLoader(map[string][]domain.Question{
		"17": sciencePool(),
	}), time.Minute)
}

func sciencePool() []domain.Question {
	pool := make([]domain.Question, 0, 8)
	for i := 1; i <= 8; i++ {
		pool = append(pool, domain.Question{
			Category:         "Science",
			Difficulty:       domain.DifficultyEasy,
			Prompt:           fmt.Sprintf("Science question %d?", i),
			CorrectAnswer:    fmt.Sprintf("right-%d", i),
			IncorrectAnswers: []string{"wrong-a", "wrong-b", "wrong-c"},
		})
	}
	return pool
}

// correctAnswer maps a prompt from sciencePool back to its answer.
func correctAnswer(prompt string) string {
	var n int
	_, _ = fmt.Sscanf(prompt, "Science question %d?", &n)
	return fmt.Sprintf("right-%d", n)
}

func hasNotice(notices []string, fragment string) bool {
	for _, n := range notices {
		if strings.Contains(n, fragment) {
			return true
		}
	}
	return false
}

type flakyStore struct {
	*memory.ProgressStore
	failIncrement bool
	failStats     bool
	failUpdate    bool
}

var errStoreDown = errors.New("store unavailable")

func (s *flakyStore) IncrementCategoryStat(ctx context.Context, userID, category string, delta int) error {
	if s.failIncrement {
		return errStoreDown
	}
	return s.ProgressStore.IncrementCategoryStat(ctx, userID, category, delta)
}

func (s *flakyStore) CategoryStats(ctx context.Context, userID string) (map[string]int, error) {
	if s.failStats {
		return nil, errStoreDown
	}
	return s.ProgressStore.CategoryStats(ctx, userID)
}

func (s *flakyStore) UpdateUserProgress(ctx context.Context, userID string, xp, level int) error {
	if s.failUpdate {
		return errStoreDown
	}
	return s.ProgressStore.UpdateUserProgress(ctx, userID, xp, level)
}

// blockingStore parks the first category increment until release is closed.
type blockingStore struct {
	*memory.ProgressStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) IncrementCategoryStat(ctx context.Context, userID, category string, delta int) error {
	close(s.entered)
	<-s.release
	return s.ProgressStore.IncrementCategoryStat(ctx, userID, category, delta)
}

// cancellingStore honours ctx on every completion call and cancels the caller's context
// right after the first category increment lands.
type cancellingStore struct {
	*memory.ProgressStore
	cancel context.CancelFunc
}

func (s *cancellingStore) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	return s.ProgressStore.GetUser(ctx, userID)
}

func (s *cancellingStore) IncrementCategoryStat(ctx context.Context, userID, category string, delta int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.ProgressStore.IncrementCategoryStat(ctx, userID, category, delta)
	s.cancel()
	return err
}

func (s *cancellingStore) CategoryStats(ctx context.Context, userID string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ProgressStore.CategoryStats(ctx, userID)
}

func (s *cancellingStore) InsertUnlock(ctx context.Context, userID, achievementID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.ProgressStore.InsertUnlock(ctx, userID, achievementID, at)
}

func (s *cancellingStore) UpdateUserProgress(ctx context.Context, userID string, xp, level int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.ProgressStore.UpdateUserProgress(ctx, userID, xp, level)
}
