package achievements

import (
	"sort"

	"mindquake-service/internal/domain"
)

// Threshold is the minimum cumulative correct count for a tier.
type Threshold struct {
	Tier       domain.Tier
	MinCorrect int
}

// Thresholds are ordered from easiest to hardest.
var Thresholds = []Threshold{
	{Tier: domain.TierBronze, MinCorrect: 5},
	{Tier: domain.TierSilver, MinCorrect: 10},
	{Tier: domain.TierPlatinum, MinCorrect: 20},
}

// Key builds the catalog key for a category and tier.
func Key(category string, tier domain.Tier) string {
	return NormalizeCategory(category) + "_" + string(tier)
}

// SatisfiedTiers returns every tier whose threshold is met by correct.
func SatisfiedTiers(correct int) []domain.Tier {
	var tiers []domain.Tier
	for _, th := range Thresholds {
		if correct >= th.MinCorrect {
			tiers = append(tiers, th.Tier)
		}
	}
	return tiers
}

// Evaluate maps cumulative per-category counts to every achievement key they satisfy,
// whether or not it was earned before. Keys are ordered by category, then tier.
func Evaluate(totals map[string]int) []string {
	categories := make([]string, 0, len(totals))
	for category := range totals {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var keys []string
	for _, category := range categories {
		for _, tier := range SatisfiedTiers(totals[category]) {
			keys = append(keys, Key(category, tier))
		}
	}
	return keys
}
