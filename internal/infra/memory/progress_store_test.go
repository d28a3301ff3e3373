package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"mindquake-service/internal/domain"
)

func TestProgressStoreCategoryIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore()
	store.PutUser(domain.User{ID: "u1", DisplayName: "Alice"})

	if err := store.IncrementCategoryStat(ctx, "u1", "science", 3); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := store.IncrementCategoryStat(ctx, "u1", "science", 4); err != nil {
		t.Fatalf("increment: %v", err)
	}

	stat, ok, err := store.GetCategoryStat(ctx, "u1", "science")
	if err != nil || !ok {
		t.Fatalf("expected stat, ok=%v err=%v", ok, err)
	}
	if stat.CorrectAnswers != 7 {
		t.Fatalf("expected 7 correct, got %d", stat.CorrectAnswers)
	}

	if err := store.IncrementCategoryStat(ctx, "ghost", "science", 1); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestProgressStoreInsertUnlockIsInsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore()
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	inserted, err := store.InsertUnlock(ctx, "u1", "a1", at)
	if err != nil || !inserted {
		t.Fatalf("expected first insert, inserted=%v err=%v", inserted, err)
	}
	inserted, err = store.InsertUnlock(ctx, "u1", "a1", at.Add(time.Hour))
	if err != nil || inserted {
		t.Fatalf("expected duplicate to be ignored, inserted=%v err=%v", inserted, err)
	}

	unlocks, _ := store.ListUnlocks(ctx, "u1")
	if !unlocks["a1"].Equal(at) {
		t.Fatalf("expected original unlock time kept, got %v", unlocks["a1"])
	}
}

func TestProgressStoreRanking(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.PutUser(domain.User{ID: "a", DisplayName: "Ann", Level: 3, XP: 10, CreatedAt: base})
	store.PutUser(domain.User{ID: "b", DisplayName: "Ben", Level: 2, XP: 400, CreatedAt: base})
	store.PutUser(domain.User{ID: "c", DisplayName: "Cid", Level: 3, XP: 200, CreatedAt: base})
	store.PutUser(domain.User{ID: "d", DisplayName: "Dee", Level: 2, XP: 400, CreatedAt: base.Add(time.Hour)})

	top, _ := store.TopUsers(ctx, 3)
	if len(top) != 3 || top[0].ID != "c" || top[1].ID != "a" || top[2].ID != "b" {
		t.Fatalf("unexpected order: %+v", top)
	}

	rank, err := store.UserRank(ctx, "d")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if rank != 3 {
		t.Fatalf("expected tied rank 3, got %d", rank)
	}
}
