// Package achievements turns per-category correct-answer counts into tiered achievement unlocks.
package achievements

import "strings"

// NormalizeCategory folds a category display name into the key used by stats and the catalog:
// lower case, "&" spelled as "and", whitespace runs joined by a single underscore.
// "Film & TV", "film & tv" and "Film&TV" all become "film_and_tv".
func NormalizeCategory(category string) string {
	s := strings.ToLower(category)
	s = strings.ReplaceAll(s, "&", " and ")
	return strings.Join(strings.Fields(s), "_")
}

// Tally accumulates correct answers per normalized category for one quiz session.
// It is not safe for concurrent use; the owning session serializes access.
type Tally struct {
	counts map[string]int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[string]int)}
}

// RecordCorrect counts one correct answer in category and returns the normalized key.
func (t *Tally) RecordCorrect(category string) string {
	key := NormalizeCategory(category)
	t.counts[key]++
	return key
}

// Count returns the session count for a category (display name or key).
func (t *Tally) Count(category string) int {
	return t.counts[NormalizeCategory(category)]
}

// Deltas returns a copy of the per-category counts accumulated this session.
func (t *Tally) Deltas() map[string]int {
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Merge combines session deltas with persisted totals that were read back after the
// deltas were written. A persisted total already contains the session increment, so it
// wins as-is; a category the store does not report falls back to the session count.
// Nothing is ever summed, so a category cannot be counted twice.
func Merge(session, persistedAfterWrite map[string]int) map[string]int {
	out := make(map[string]int, len(session)+len(persistedAfterWrite))
	for k, v := range persistedAfterWrite {
		out[NormalizeCategory(k)] = v
	}
	for k, v := range session {
		key := NormalizeCategory(k)
		if _, ok := out[key]; !ok {
			out[key] = v
		}
	}
	return out
}
