package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sample := &Task{ID: "t-1", OriginalRequest: "demo", Intent: intent.IntentGeneral, Status: StatusPlanned, MaxRetries: 3}
	if err := store.Create(ctx, sample); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "t-1", Status: StatusPlanned}); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("duplicate id should conflict, got %v", err)
	}

	got, err := store.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CreatedAt == 0 || got.UpdatedAt == 0 {
		t.Fatalf("timestamps not set: %+v", got)
	}

	// Returned snapshots must be isolated from the stored record.
	got.Plan = "mutated"
	again, err := store.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Plan != "" {
		t.Fatalf("stored task mutated through snapshot: %q", again.Plan)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Task{ID: "t-1", Status: StatusPlanned, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := store.Update(ctx, "t-1", func(task *Task) error {
		task.Status = StatusExecuting
		task.RetryCount = 1
		// Identity fields set by the store must survive mutator changes.
		task.ID = "hijacked"
		task.CreatedAt = 42
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != StatusExecuting || updated.RetryCount != 1 {
		t.Fatalf("unexpected task after update: %+v", updated)
	}
	if updated.ID != "t-1" || updated.CreatedAt == 42 {
		t.Fatalf("mutator overwrote identity fields: %+v", updated)
	}

	boom := errors.New("boom")
	snapshot, err := store.Update(ctx, "t-1", func(*Task) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("mutator error should propagate, got %v", err)
	}
	if snapshot == nil || snapshot.Status != StatusExecuting {
		t.Fatalf("rejected update should return the current snapshot, got %+v", snapshot)
	}
}

func TestMemoryStoreListAndStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Unix()
	seed := []struct {
		id     string
		status Status
		age    int64
	}{
		{"t-1", StatusWaiting, 30},
		{"t-2", StatusCompleted, 20},
		{"t-3", StatusWaiting, 10},
		{"t-4", StatusFailed, 5},
	}
	for _, item := range seed {
		if err := store.Create(ctx, &Task{
			ID:        item.id,
			Status:    item.status,
			CreatedAt: base - item.age,
		}); err != nil {
			t.Fatalf("create %s: %v", item.id, err)
		}
	}

	waiting, err := store.List(ctx, ListOptions{Statuses: []Status{StatusWaiting}, Order: SortByCreatedAsc})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(waiting) != 2 {
		t.Fatalf("unexpected waiting count: %d", len(waiting))
	}
	if waiting[0].ID != "t-1" || waiting[1].ID != "t-3" {
		t.Fatalf("waiting tasks not in creation order: %s, %s", waiting[0].ID, waiting[1].ID)
	}

	limited, err := store.List(ctx, ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit not applied: %d", len(limited))
	}

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Waiting != 2 || stats.Completed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
