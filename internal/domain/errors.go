package domain

import "errors"

var (
	// ErrUserNotFound is returned when the store has no record for a user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned when a quiz session does not exist or was discarded.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when an answer arrives after the session reached a terminal state.
	ErrSessionClosed = errors.New("quiz session is not in progress")
	// ErrAnswerInFlight is returned when an answer arrives while the previous one is still processing.
	ErrAnswerInFlight = errors.New("previous answer is still being processed")
	// ErrInvalidDifficulty indicates a difficulty outside the XP-rate table.
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	// ErrInvalidQuizConfig indicates a quiz configuration that cannot be played.
	ErrInvalidQuizConfig = errors.New("invalid quiz configuration")
	// ErrNoQuestions indicates the provider returned nothing to play.
	ErrNoQuestions = errors.New("no questions available")
	// ErrProviderRateLimited indicates the question provider asked us to slow down.
	ErrProviderRateLimited = errors.New("question provider rate limited")
)
