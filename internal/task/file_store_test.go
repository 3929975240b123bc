package task

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sample := &Task{
		ID:              "t-1",
		OriginalRequest: "summarize my inbox",
		Intent:          intent.IntentEmail,
		Status:          StatusWaiting,
		NeedsInternet:   true,
		MaxRetries:      3,
		Sources:         []Source{{Title: "ref", URL: "https://example.com"}},
	}
	if err := store.Create(ctx, sample); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Update(ctx, "t-1", func(task *Task) error {
		task.Plan = "waiting for network"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A fresh store must see exactly what was committed.
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	got, err := reopened.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusWaiting || got.Plan != "waiting for network" {
		t.Fatalf("unexpected task after reload: %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].URL != "https://example.com" {
		t.Fatalf("sources lost on reload: %+v", got.Sources)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, err := NewFileStore(path)
		if err == nil {
			t.Fatal("corrupt file must refuse to load")
		}
		if xerrors.CodeOf(err) != xerrors.CodeStoreCorrupted {
			t.Fatalf("unexpected error code: %v", xerrors.CodeOf(err))
		}
	})

	t.Run("duplicate ids", func(t *testing.T) {
		path := filepath.Join(dir, "dup.json")
		payload := `[{"id":"t-1","status":"planned"},{"id":"t-1","status":"completed"}]`
		if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, err := NewFileStore(path)
		if err == nil {
			t.Fatal("duplicate ids must refuse to load")
		}
		if xerrors.CodeOf(err) != xerrors.CodeStoreCorrupted {
			t.Fatalf("unexpected error code: %v", xerrors.CodeOf(err))
		}
	})

	t.Run("missing id", func(t *testing.T) {
		path := filepath.Join(dir, "noid.json")
		if err := os.WriteFile(path, []byte(`[{"status":"planned"}]`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := NewFileStore(path); err == nil {
			t.Fatal("record without id must refuse to load")
		}
	})
}

func TestFileStoreFailsInterruptedTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	payload := `[
  {"id":"t-1","status":"executing","retry_count":1,"max_retries":3},
  {"id":"t-2","status":"waiting_for_internet","max_retries":3}
]`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	interrupted, err := store.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if interrupted.Status != StatusFailed {
		t.Fatalf("interrupted task should fail on restart, got %q", interrupted.Status)
	}
	if !strings.Contains(interrupted.Plan, "interrupted") {
		t.Fatalf("plan should explain the interruption: %q", interrupted.Plan)
	}

	waiting, err := store.Get(ctx, "t-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if waiting.Status != StatusWaiting {
		t.Fatalf("waiting task must survive restart untouched, got %q", waiting.Status)
	}

	// The failure must be persisted, not just in memory.
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again, err := reopened.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Status != StatusFailed {
		t.Fatalf("interruption not persisted, got %q", again.Status)
	}
}
