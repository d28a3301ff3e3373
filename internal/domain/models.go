package domain

import "time"

// User is the progression record owned by the remote store.
// XP is the remainder within the current level, not the lifetime total.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	XP          int       `json:"xp"`
	Level       int       `json:"level"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CategoryStat is the cumulative correct-answer count of one user in one category.
type CategoryStat struct {
	UserID         string `json:"userId"`
	Category       string `json:"category"`
	CorrectAnswers int    `json:"correctAnswers"`
}

// Tier ranks achievements within a category.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierPlatinum Tier = "platinum"
)

// Tiers lists every tier from easiest to hardest.
var Tiers = []Tier{TierBronze, TierSilver, TierPlatinum}

// Rank orders tiers by difficulty; unknown tiers sort last.
func (t Tier) Rank() int {
	for i, tier := range Tiers {
		if tier == t {
			return i
		}
	}
	return len(Tiers)
}

// Achievement is an immutable catalog entry.
type Achievement struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Category string `json:"category"`
	Tier     Tier   `json:"tier"`
}

// UnlockedAchievement is an achievement together with the moment it was earned.
type UnlockedAchievement struct {
	Achievement
	UnlockedAt time.Time `json:"unlockedAt"`
}

// AchievementStatus is a catalog entry as seen by one user.
type AchievementStatus struct {
	Achievement
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

// Unlocked reports whether the user has earned the achievement.
func (a AchievementStatus) Unlocked() bool {
	return a.UnlockedAt != nil
}

// Difficulty is the question difficulty chosen for a quiz.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var xpRates = map[Difficulty]int{
	DifficultyEasy:   50,
	DifficultyMedium: 100,
	DifficultyHard:   150,
}

// XPRate returns the XP awarded per correct answer, or false for an unknown difficulty.
func (d Difficulty) XPRate() (int, bool) {
	rate, ok := xpRates[d]
	return rate, ok
}

// Question is a multiple-choice trivia question as delivered by the provider.
type Question struct {
	Category         string     `json:"category"`
	Difficulty       Difficulty `json:"difficulty"`
	Prompt           string     `json:"prompt"`
	CorrectAnswer    string     `json:"correctAnswer"`
	IncorrectAnswers []string   `json:"incorrectAnswers"`
	// Answers holds every candidate in display order; filled when a session is assembled.
	Answers []string `json:"answers,omitempty"`
}

// IsCorrect reports whether answer matches the correct answer.
func (q Question) IsCorrect(answer string) bool {
	return answer == q.CorrectAnswer
}

// QuizConfig is what a player submits to start a quiz.
type QuizConfig struct {
	Categories []string   `json:"categories"`
	Count      int        `json:"count"`
	Difficulty Difficulty `json:"difficulty"`
}

// SessionResult is the payload produced when a quiz finishes.
type SessionResult struct {
	XPEarned       int                   `json:"xpEarned"`
	FinalXP        int                   `json:"finalXp"`
	FinalLevel     int                   `json:"finalLevel"`
	XPToNextLevel  int                   `json:"xpToNextLevel"`
	CorrectCount   int                   `json:"correctCount"`
	TotalQuestions int                   `json:"totalQuestions"`
	Unlocked       []UnlockedAchievement `json:"newlyUnlockedAchievements"`
	Notices        []string              `json:"notices,omitempty"`
}

// LeaderboardEntry is a ranked view of a user.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Level       int    `json:"level"`
	XP          int    `json:"xp"`
}

// Leaderboard captures the top players plus the requesting player's own position.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	Me        *LeaderboardEntry  `json:"me,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Profile is a user with the derived progression figures for display.
type Profile struct {
	User
	XPForNextLevel int `json:"xpForNextLevel"`
	XPRemaining    int `json:"xpRemaining"`
}
