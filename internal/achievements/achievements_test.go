package achievements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindquake-service/internal/domain"
)

func TestNormalizeCategory(t *testing.T) {
	tests := map[string]string{
		"Film & TV":           "film_and_tv",
		"film & tv":           "film_and_tv",
		"Film&TV":             "film_and_tv",
		"  Science   ":        "science",
		"Science & Nature":    "science_and_nature",
		"Entertainment: Film": "entertainment:_film",
		"film_and_tv":         "film_and_tv",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeCategory(in), "input %q", in)
	}
}

func TestTallyRecordsPerNormalizedCategory(t *testing.T) {
	tally := NewTally()
	tally.RecordCorrect("Film & TV")
	tally.RecordCorrect("film&tv")
	tally.RecordCorrect("Science")

	assert.Equal(t, 2, tally.Count("Film & TV"))
	assert.Equal(t, 1, tally.Count("science"))
	assert.Equal(t, 0, tally.Count("History"))
	assert.Equal(t, map[string]int{"film_and_tv": 2, "science": 1}, tally.Deltas())
}

func TestMergePrefersPersistedTotals(t *testing.T) {
	session := map[string]int{"science": 5, "history": 2}
	persisted := map[string]int{"science": 10, "art": 7}

	merged := Merge(session, persisted)

	assert.Equal(t, map[string]int{"science": 10, "art": 7, "history": 2}, merged)
}

func TestEvaluateThresholds(t *testing.T) {
	tests := []struct {
		name    string
		correct int
		want    []string
	}{
		{"below bronze", 4, nil},
		{"exactly bronze", 5, []string{"science_bronze"}},
		{"nine", 9, []string{"science_bronze"}},
		{"ten", 10, []string{"science_bronze", "science_silver"}},
		{"twenty", 20, []string{"science_bronze", "science_silver", "science_platinum"}},
		{"beyond", 57, []string{"science_bronze", "science_silver", "science_platinum"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(map[string]int{"science": tt.correct}))
		})
	}
}

func TestEvaluateOrdersByCategory(t *testing.T) {
	keys := Evaluate(map[string]int{"science": 5, "art": 10, "history": 1})
	assert.Equal(t, []string{"art_bronze", "art_silver", "science_bronze"}, keys)
}

type fakeUnlockStore struct {
	catalog   map[string]domain.Achievement
	unlocks   map[string]time.Time
	failKey   string
	insertErr error
	inserts   int
}

func newFakeUnlockStore(keys ...string) *fakeUnlockStore {
	s := &fakeUnlockStore{catalog: map[string]domain.Achievement{}, unlocks: map[string]time.Time{}}
	for _, key := range keys {
		s.catalog[key] = domain.Achievement{ID: "id-" + key, Key: key, Name: key}
	}
	return s
}

func (s *fakeUnlockStore) AchievementByKey(_ context.Context, key string) (domain.Achievement, bool, error) {
	a, ok := s.catalog[key]
	return a, ok, nil
}

func (s *fakeUnlockStore) HasUnlock(_ context.Context, userID, achievementID string) (bool, error) {
	_, ok := s.unlocks[userID+"/"+achievementID]
	return ok, nil
}

func (s *fakeUnlockStore) InsertUnlock(_ context.Context, userID, achievementID string, at time.Time) (bool, error) {
	s.inserts++
	if s.failKey != "" && achievementID == "id-"+s.failKey {
		return false, s.insertErr
	}
	k := userID + "/" + achievementID
	if _, ok := s.unlocks[k]; ok {
		return false, nil
	}
	s.unlocks[k] = at
	return true, nil
}

func fixedClock() time.Time {
	return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
}

func TestUnlockIsIdempotent(t *testing.T) {
	store := newFakeUnlockStore("science_bronze", "science_silver")
	c := NewCoordinatorWithClock(store, fixedClock)
	keys := []string{"science_bronze", "science_silver"}

	first, failed := c.Unlock(context.Background(), "u1", keys)
	require.Empty(t, failed)
	require.Len(t, first, 2)
	assert.Equal(t, "science_bronze", first[0].Key)
	assert.Equal(t, fixedClock(), first[0].UnlockedAt)

	second, failed := c.Unlock(context.Background(), "u1", keys)
	require.Empty(t, failed)
	assert.Empty(t, second)
	assert.Equal(t, 2, store.inserts, "existence check must prevent a second insert")
}

func TestUnlockSkipsKeysMissingFromCatalog(t *testing.T) {
	store := newFakeUnlockStore("science_bronze")
	c := NewCoordinatorWithClock(store, fixedClock)

	unlocked, failed := c.Unlock(context.Background(), "u1", []string{"art_bronze", "science_bronze"})

	assert.Empty(t, failed)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "science_bronze", unlocked[0].Key)
}

func TestUnlockContinuesPastInsertFailure(t *testing.T) {
	store := newFakeUnlockStore("art_bronze", "science_bronze", "science_silver")
	store.failKey = "science_bronze"
	store.insertErr = errors.New("connection reset")
	c := NewCoordinatorWithClock(store, fixedClock)

	unlocked, failed := c.Unlock(context.Background(), "u1", []string{"art_bronze", "science_bronze", "science_silver"})

	assert.Equal(t, []string{"science_bronze"}, failed)
	require.Len(t, unlocked, 2)
	assert.Equal(t, "art_bronze", unlocked[0].Key)
	assert.Equal(t, "science_silver", unlocked[1].Key)
}

func TestUnlockTreatsLostInsertRaceAsAlreadyUnlocked(t *testing.T) {
	store := &racingStore{fakeUnlockStore: newFakeUnlockStore("science_bronze")}
	c := NewCoordinatorWithClock(store, fixedClock)

	unlocked, failed := c.Unlock(context.Background(), "u1", []string{"science_bronze"})

	assert.Empty(t, failed)
	assert.Empty(t, unlocked)
}

// racingStore never reports an existing unlock, so only the insert conflict protects the pair.
type racingStore struct {
	*fakeUnlockStore
}

func (s *racingStore) HasUnlock(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *racingStore) InsertUnlock(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}
