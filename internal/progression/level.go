// Package progression converts lifetime XP into a level and the XP held within that level.
//
// Completing level n costs 250*n XP, so level 1 ends at 250 lifetime XP, level 2 at 750,
// level 3 at 1500 and so on. Levels are unbounded.
package progression

import "mindquake-service/internal/domain"

// StepXP is the per-level increment of the XP requirement.
const StepXP = 250

// RequiredForNextLevel returns the XP needed to complete the given level.
func RequiredForNextLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return StepXP * level
}

// Fold walks a lifetime total through the level requirements and returns the reached
// level and the remainder kept inside it. Negative totals are treated as zero.
func Fold(total int) (level, xp int) {
	if total < 0 {
		total = 0
	}
	level = 1
	for total >= RequiredForNextLevel(level) {
		total -= RequiredForNextLevel(level)
		level++
	}
	return level, total
}

// LevelForLifetimeXP returns the level reached with the given lifetime XP.
func LevelForLifetimeXP(total int) int {
	level, _ := Fold(total)
	return level
}

// XPWithinLevel returns the XP stored on the user record for the given lifetime XP.
func XPWithinLevel(total int) int {
	_, xp := Fold(total)
	return xp
}

// LifetimeXP is the inverse of Fold: the lifetime total represented by (level, xp).
func LifetimeXP(level, xp int) int {
	if level < 1 {
		level = 1
	}
	if xp < 0 {
		xp = 0
	}
	// 250 * (1 + 2 + ... + level-1)
	return StepXP*(level-1)*level/2 + xp
}

// SetLifetimeXP returns a copy of u whose level and xp are derived from total.
// It is the only way progression fields should change.
func SetLifetimeXP(u domain.User, total int) domain.User {
	u.Level, u.XP = Fold(total)
	return u
}

// AddXP returns a copy of u with earned XP folded into its level.
func AddXP(u domain.User, earned int) domain.User {
	return SetLifetimeXP(u, LifetimeXP(u.Level, u.XP)+earned)
}

// Remaining returns how much XP u still needs to reach the next level.
func Remaining(u domain.User) int {
	return RequiredForNextLevel(u.Level) - u.XP
}
