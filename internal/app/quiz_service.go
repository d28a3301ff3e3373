package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mindquake-service/internal/achievements"
	"mindquake-service/internal/domain"
)

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Save(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// QuestionRepository returns the question pool for one provider category and difficulty.
type QuestionRepository interface {
	GetPool(ctx context.Context, category string, difficulty domain.Difficulty) ([]domain.Question, error)
}

// ProgressStore is the remote data store holding users, category stats, the achievement
// catalog and unlock records.
type ProgressStore interface {
	achievements.UnlockStore

	GetUser(ctx context.Context, userID string) (domain.User, error)
	UpdateUserProgress(ctx context.Context, userID string, xp, level int) error
	GetCategoryStat(ctx context.Context, userID, category string) (domain.CategoryStat, bool, error)
	// IncrementCategoryStat adds delta to the stat, creating it when absent.
	IncrementCategoryStat(ctx context.Context, userID, category string, delta int) error
	CategoryStats(ctx context.Context, userID string) (map[string]int, error)
	ListAchievements(ctx context.Context) ([]domain.Achievement, error)
	ListUnlocks(ctx context.Context, userID string) (map[string]time.Time, error)
	TopUsers(ctx context.Context, limit int) ([]domain.User, error)
	UserRank(ctx context.Context, userID string) (int, error)
}

// DefaultMaxQuestions bounds a quiz when no explicit limit is configured.
const DefaultMaxQuestions = 50

// completionTimeout bounds the end-of-quiz pipeline once it is detached from the caller.
const completionTimeout = 30 * time.Second

// QuizService drives quiz sessions from configuration to result.
type QuizService struct {
	sessions  SessionRepository
	questions QuestionRepository
	store     ProgressStore
	unlocker  *achievements.Coordinator

	now          func() time.Time
	newID        func() string
	maxQuestions int

	rndMu sync.Mutex
	rnd   *rand.Rand

	// completions serializes end-of-quiz pipelines per user, striped by user id.
	completions [64]sync.Mutex
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithClock sets the time source used for sessions and unlock timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

// WithRand sets the shuffle source.
func WithRand(rnd *rand.Rand) Option {
	return func(s *QuizService) { s.rnd = rnd }
}

// WithMaxQuestions caps the question count a player may request.
func WithMaxQuestions(n int) Option {
	return func(s *QuizService) {
		if n > 0 {
			s.maxQuestions = n
		}
	}
}

// WithIDGenerator sets how session ids are produced.
func WithIDGenerator(newID func() string) Option {
	return func(s *QuizService) { s.newID = newID }
}

func NewQuizService(sessions SessionRepository, questions QuestionRepository, store ProgressStore, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:     sessions,
		questions:    questions,
		store:        store,
		now:          time.Now,
		newID:        uuid.NewString,
		maxQuestions: DefaultMaxQuestions,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unlocker = achievements.NewCoordinatorWithClock(store, s.now)
	return s
}

// Start creates a session for the user and loads its questions. A failed load is not an
// error: the returned view is in the terminal LoadFailed state with a reason to show.
func (s *QuizService) Start(ctx context.Context, userID string, cfg domain.QuizConfig) (SessionView, error) {
	cfg, err := s.normalizeConfig(cfg)
	if err != nil {
		return SessionView{}, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return SessionView{}, err
	}

	session := newSessionWithClock(s.newID(), userID, cfg, s.now)
	s.sessions.Save(session)

	questions, err := s.assembleQuestions(ctx, cfg)
	if err != nil {
		slog.Warn("question load failed", "user_id", userID, "session_id", session.ID(), "error", err)
		reason := "could not load questions"
		if errors.Is(err, domain.ErrNoQuestions) {
			reason = domain.ErrNoQuestions.Error()
		}
		view := session.fail(reason)
		s.sessions.Delete(session.ID())
		return view, nil
	}

	view := session.start(questions)
	if view.State.Terminal() {
		s.sessions.Delete(session.ID())
	}
	slog.Info("quiz started", "user_id", userID, "session_id", session.ID(), "state", view.State, "questions", view.Total)
	return view, nil
}

// Answer submits an answer for the current question of a session. Answering the last
// question runs the completion pipeline and returns the session result.
func (s *QuizService) Answer(ctx context.Context, sessionID, answer string) (AnswerOutcome, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return AnswerOutcome{}, domain.ErrSessionNotFound
	}

	outcome, run, err := session.answer(answer)
	if err != nil || run == nil {
		return outcome, err
	}

	// Completion runs every stage even when the caller goes away mid-pipeline.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionTimeout)
	unlock := s.lockUser(run.userID)
	result := s.complete(cctx, run)
	unlock()
	cancel()
	session.finish(result)
	s.sessions.Delete(sessionID)

	outcome.State = StateFinished
	outcome.Result = &result
	return outcome, nil
}

// Get returns the current view of a live session.
func (s *QuizService) Get(_ context.Context, sessionID string) (SessionView, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return SessionView{}, domain.ErrSessionNotFound
	}
	return session.View(), nil
}

// Abort discards a session without persisting anything.
func (s *QuizService) Abort(_ context.Context, sessionID string) error {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions.Delete(sessionID)
	slog.Info("quiz aborted", "session_id", sessionID)
	return nil
}

func (s *QuizService) lockUser(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &s.completions[h.Sum32()%uint32(len(s.completions))]
	mu.Lock()
	return mu.Unlock
}

func (s *QuizService) normalizeConfig(cfg domain.QuizConfig) (domain.QuizConfig, error) {
	if _, ok := cfg.Difficulty.XPRate(); !ok {
		return cfg, fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, cfg.Difficulty)
	}
	if cfg.Count < 1 || cfg.Count > s.maxQuestions {
		return cfg, fmt.Errorf("%w: count must be between 1 and %d", domain.ErrInvalidQuizConfig, s.maxQuestions)
	}
	categories := make([]string, 0, len(cfg.Categories))
	seen := make(map[string]bool)
	for _, c := range cfg.Categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		categories = append(categories, c)
	}
	if len(categories) == 0 {
		return cfg, fmt.Errorf("%w: at least one category is required", domain.ErrInvalidQuizConfig)
	}
	cfg.Categories = categories
	return cfg, nil
}

// assembleQuestions fetches every category pool concurrently, drops questions repeated
// across pools, shuffles, keeps cfg.Count and shuffles each question's answers.
func (s *QuizService) assembleQuestions(ctx context.Context, cfg domain.QuizConfig) ([]domain.Question, error) {
	pools := make([][]domain.Question, len(cfg.Categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range cfg.Categories {
		g.Go(func() error {
			pool, err := s.questions.GetPool(gctx, category, cfg.Difficulty)
			if err != nil {
				return fmt.Errorf("category %s: %w", category, err)
			}
			pools[i] = pool
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var merged []domain.Question
	for _, pool := range pools {
		for _, q := range pool {
			if seen[q.Prompt] {
				continue
			}
			seen[q.Prompt] = true
			merged = append(merged, q)
		}
	}
	if len(merged) == 0 {
		return nil, domain.ErrNoQuestions
	}

	s.rndMu.Lock()
	defer s.rndMu.Unlock()

	s.rnd.Shuffle(len(merged), func(i, j int) { merged[i], merged[j] = merged[j], merged[i] })
	if len(merged) > cfg.Count {
		merged = merged[:cfg.Count]
	}
	for i := range merged {
		answers := make([]string, 0, len(merged[i].IncorrectAnswers)+1)
		answers = append(answers, merged[i].IncorrectAnswers...)
		answers = append(answers, merged[i].CorrectAnswer)
		s.rnd.Shuffle(len(answers), func(a, b int) { answers[a], answers[b] = answers[b], answers[a] })
		merged[i].Answers = answers
	}
	return merged, nil
}
