package app

import (
	"sync"
	"time"

	"mindquake-service/internal/achievements"
	"mindquake-service/internal/domain"
)

// SessionState is the lifecycle phase of a quiz session.
type SessionState string

const (
	StateLoading    SessionState = "loading"
	StateInProgress SessionState = "in_progress"
	StateFinished   SessionState = "finished"    // terminal
	StateLoadFailed SessionState = "load_failed" // terminal
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateFinished || s == StateLoadFailed
}

// QuestionView is the current question as shown to the player, without the answer key.
type QuestionView struct {
	Index      int               `json:"index"`
	Total      int               `json:"total"`
	Category   string            `json:"category"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Prompt     string            `json:"prompt"`
	Answers    []string          `json:"answers"`
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	ID           string                `json:"id"`
	UserID       string                `json:"userId"`
	State        SessionState          `json:"state"`
	CorrectCount int                   `json:"correctCount"`
	Total        int                   `json:"totalQuestions"`
	Question     *QuestionView         `json:"question,omitempty"`
	Result       *domain.SessionResult `json:"result,omitempty"`
	Reason       string                `json:"reason,omitempty"`
}

// AnswerOutcome is what the player learns after submitting an answer.
type AnswerOutcome struct {
	State         SessionState          `json:"state"`
	Correct       bool                  `json:"correct"`
	CorrectAnswer string                `json:"correctAnswer"`
	CorrectCount  int                   `json:"correctCount"`
	Next          *QuestionView         `json:"next,omitempty"`
	Result        *domain.SessionResult `json:"result,omitempty"`
}

// Session holds the ephemeral state of one quiz. Per-session counts are merged with
// persisted totals only when the last question is answered.
type Session struct {
	id        string
	userID    string
	config    domain.QuizConfig
	createdAt time.Time
	now       func() time.Time

	mu           sync.Mutex
	state        SessionState
	questions    []domain.Question
	index        int
	correct      int
	tally        *achievements.Tally
	inFlight     bool
	result       *domain.SessionResult
	reason       string
	lastActivity time.Time
}

// NewSession builds a session in the loading state, stamped with the current time.
func NewSession(id, userID string, cfg domain.QuizConfig) *Session {
	return newSessionWithClock(id, userID, cfg, time.Now)
}

// NewSessionWithClock is NewSession with its timestamps and idle tracking read from now.
func NewSessionWithClock(id, userID string, cfg domain.QuizConfig, now func() time.Time) *Session {
	return newSessionWithClock(id, userID, cfg, now)
}

func newSessionWithClock(id, userID string, cfg domain.QuizConfig, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:           id,
		userID:       userID,
		config:       cfg,
		createdAt:    created,
		now:          now,
		state:        StateLoading,
		tally:        achievements.NewTally(),
		lastActivity: created,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// UserID returns the player the session belongs to.
func (s *Session) UserID() string { return s.userID }

// LastActivity returns when the session last changed.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// State returns the current lifecycle phase.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a snapshot of the session.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// start moves Loading to InProgress, or to LoadFailed when there is nothing to play.
func (s *Session) start(questions []domain.Question) SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoading {
		return s.viewLocked()
	}
	if len(questions) == 0 {
		s.state = StateLoadFailed
		s.reason = domain.ErrNoQuestions.Error()
		return s.viewLocked()
	}
	s.questions = questions
	s.index = 0
	s.state = StateInProgress
	s.lastActivity = s.now()
	return s.viewLocked()
}

// fail moves Loading to LoadFailed.
func (s *Session) fail(reason string) SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLoading {
		s.state = StateLoadFailed
		s.reason = reason
	}
	return s.viewLocked()
}

// answer applies one answer to the current question. When it was the last question the
// session stays InProgress with inFlight set, and the returned run carries everything the
// completion pipeline needs; finish must be called afterwards.
func (s *Session) answer(answer string) (AnswerOutcome, *completionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return AnswerOutcome{State: s.state}, nil, domain.ErrSessionClosed
	}
	if s.inFlight {
		return AnswerOutcome{State: s.state}, nil, domain.ErrAnswerInFlight
	}

	q := s.questions[s.index]
	correct := q.IsCorrect(answer)
	if correct {
		s.correct++
		s.tally.RecordCorrect(q.Category)
	}
	s.lastActivity = s.now()

	outcome := AnswerOutcome{
		State:         s.state,
		Correct:       correct,
		CorrectAnswer: q.CorrectAnswer,
		CorrectCount:  s.correct,
	}

	if s.index+1 < len(s.questions) {
		s.index++
		outcome.Next = s.questionLocked()
		return outcome, nil, nil
	}

	s.inFlight = true
	run := &completionRun{
		userID:     s.userID,
		difficulty: s.config.Difficulty,
		correct:    s.correct,
		total:      len(s.questions),
		deltas:     s.tally.Deltas(),
	}
	return outcome, run, nil
}

// finish moves InProgress to Finished with the completion result.
func (s *Session) finish(result domain.SessionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.state = StateFinished
	s.result = &result
	s.lastActivity = s.now()
}

func (s *Session) viewLocked() SessionView {
	view := SessionView{
		ID:           s.id,
		UserID:       s.userID,
		State:        s.state,
		CorrectCount: s.correct,
		Total:        len(s.questions),
		Result:       s.result,
		Reason:       s.reason,
	}
	if s.state == StateInProgress {
		view.Question = s.questionLocked()
	}
	return view
}

func (s *Session) questionLocked() *QuestionView {
	q := s.questions[s.index]
	answers := make([]string, len(q.Answers))
	copy(answers, q.Answers)
	return &QuestionView{
		Index:      s.index,
		Total:      len(s.questions),
		Category:   q.Category,
		Difficulty: q.Difficulty,
		Prompt:     q.Prompt,
		Answers:    answers,
	}
}
