package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Himanshu-is-code/AMD-HACK/internal/agent"
	"github.com/Himanshu-is-code/AMD-HACK/internal/connectivity"
	xerrors "github.com/Himanshu-is-code/AMD-HACK/internal/errors"
	"github.com/Himanshu-is-code/AMD-HACK/internal/intent"
)

type stubVerifier struct {
	expect string
}

func (v *stubVerifier) VerifyCredential(_ context.Context, credential string) error {
	if credential != v.expect {
		return errors.New("bad credential")
	}
	return nil
}

func TestOrchestratorSubmitOnline(t *testing.T) {
	store := NewMemoryStore()
	probe := connectivity.NewStaticProbe(true)
	card := &stubCard{name: "calendar", handles: intent.IntentCalendar,
		execute: func(_ context.Context, req agent.Request) (*agent.Result, error) {
			return &agent.Result{Plan: "Created event: " + req.Text}, nil
		},
	}
	runner := NewRunner(store, agent.NewRegistry(nil, card), nil)
	orch := NewOrchestrator(store, intent.NewRuleClassifier(), runner, probe)

	got, err := orch.Submit(context.Background(), SubmitRequest{Text: "Mark a dentist appointment on my calendar"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Intent != intent.IntentCalendar {
		t.Fatalf("unexpected intent: %q", got.Intent)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("online submission should complete synchronously, got %q", got.Status)
	}
	if got.Plan == "" {
		t.Fatalf("completed task must carry a plan")
	}
}

func TestOrchestratorSubmitSurvivesCallerCancellation(t *testing.T) {
	store := NewMemoryStore()
	card := &stubCard{name: "calendar", handles: intent.IntentCalendar,
		execute: func(ctx context.Context, req agent.Request) (*agent.Result, error) {
			select {
			case <-time.After(200 * time.Millisecond):
				return &agent.Result{Plan: "Created event: " + req.Text}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	runner := NewRunner(store, agent.NewRegistry(nil, card), nil)
	orch := NewOrchestrator(store, intent.NewRuleClassifier(), runner, connectivity.NewStaticProbe(true))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	snapshot, err := orch.Submit(ctx, SubmitRequest{Text: "Mark a dentist appointment on my calendar"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snapshot == nil {
		t.Fatal("caller must get a task snapshot when the wait window closes")
	}
	if snapshot.Status == StatusFailed {
		t.Fatalf("caller cancellation must not fail the task: %+v", snapshot)
	}

	// The card keeps running past the caller's deadline and commits.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.Get(context.Background(), snapshot.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status == StatusCompleted {
			if got.RetryCount != 1 {
				t.Fatalf("expected a single attempt, got %d", got.RetryCount)
			}
			break
		}
		if got.Status == StatusFailed {
			t.Fatalf("task failed instead of completing: %q %q", got.ErrorCode, got.LastError)
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never completed, status %q", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOrchestratorSubmitThreadsClientTime(t *testing.T) {
	store := NewMemoryStore()
	var seen string
	card := &stubCard{name: "calendar", handles: intent.IntentCalendar,
		execute: func(_ context.Context, req agent.Request) (*agent.Result, error) {
			seen = req.ClientTime
			return &agent.Result{Plan: "Created event: " + req.Text}, nil
		},
	}
	runner := NewRunner(store, agent.NewRegistry(nil, card), nil)
	orch := NewOrchestrator(store, intent.NewRuleClassifier(), runner, connectivity.NewStaticProbe(true))

	const clientTime = "2026-08-29T10:00:00+05:30"
	got, err := orch.Submit(context.Background(), SubmitRequest{
		Text:       "Mark a dentist appointment on my calendar",
		ClientTime: " " + clientTime + " ",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.ClientTime != clientTime {
		t.Fatalf("client time not persisted on the task: %q", got.ClientTime)
	}
	if seen != clientTime {
		t.Fatalf("card saw client time %q, want %q", seen, clientTime)
	}

	stored, err := store.Get(context.Background(), got.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ClientTime != clientTime {
		t.Fatalf("stored client time: %q", stored.ClientTime)
	}
}

func TestOrchestratorSubmitValidation(t *testing.T) {
	store := NewMemoryStore()
	runner := NewRunner(store, agent.NewRegistry(nil), nil)
	orch := NewOrchestrator(store, intent.NewRuleClassifier(), runner, connectivity.NewStaticProbe(true))

	if _, err := orch.Submit(context.Background(), SubmitRequest{Text: "   "}); err == nil {
		t.Fatal("blank request must be rejected")
	} else if xerrors.CodeOf(err) != CodeTaskValidation {
		t.Fatalf("unexpected error code: %v", xerrors.CodeOf(err))
	}
}

func TestOrchestratorDefersOfflineAndResumesViaMonitor(t *testing.T) {
	store := NewMemoryStore()
	probe := connectivity.NewStaticProbe(false)
	queue := NewMemoryQueue(8)
	card := &stubCard{name: "email", handles: intent.IntentEmail,
		execute: func(context.Context, agent.Request) (*agent.Result, error) {
			return &agent.Result{Plan: "inbox summarized"}, nil
		},
	}
	runner := NewRunner(store, agent.NewRegistry(nil, card), queue)
	orch := NewOrchestrator(store, intent.NewRuleClassifier(), runner, probe)
	monitor := NewMonitor(store, probe, queue)

	submitted, err := orch.Submit(context.Background(), SubmitRequest{Text: "Summarize my unread gmail inbox"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != StatusWaiting {
		t.Fatalf("offline submission should wait, got %q", submitted.Status)
	}

	// While offline the monitor dispatches nothing.
	if n, err := monitor.Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("offline sweep: dispatched=%d err=%v", n, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = runner.Start(ctx)
	}()

	// Connectivity returns; the next sweep hands the task to the runner.
	probe.Set(true)
	if n, err := monitor.Sweep(context.Background()); err != nil || n != 1 {
		t.Fatalf("online sweep: dispatched=%d err=%v", n, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.Get(context.Background(), submitted.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status == StatusCompleted {
			if got.Plan != "inbox summarized" {
				t.Fatalf("unexpected plan: %q", got.Plan)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never completed, status %q", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOrchestratorCompleteOverridesState(t *testing.T) {
	store := NewMemoryStore()
	runner := NewRunner(store, agent.NewRegistry(nil), nil)
	orch := NewOrchestrator(store, intent.NewRuleClassifier(), runner, connectivity.NewStaticProbe(false))

	if err := store.Create(context.Background(), &Task{ID: "t-1", Status: StatusWaiting, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := orch.Complete(context.Background(), "t-1", CompleteRequest{
		PlanUpdate: "answered by a collaborator",
		Sources:    []Source{{Title: "doc", URL: "https://example.com/doc"}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("unexpected status: %q", got.Status)
	}
	if got.Plan != "answered by a collaborator" || len(got.Sources) != 1 {
		t.Fatalf("completion payload not applied: %+v", got)
	}

	// Completing a task with no plan update still produces a usable plan.
	if err := store.Create(context.Background(), &Task{ID: "t-2", Status: StatusPlanned, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	bare, err := orch.Complete(context.Background(), "t-2", CompleteRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if bare.Plan == "" {
		t.Fatalf("completed task must not have an empty plan")
	}
}

func TestOrchestratorResume(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	card := &stubCard{name: "stub", all: true,
		execute: func(context.Context, agent.Request) (*agent.Result, error) {
			calls++
			return &agent.Result{Plan: "recovered"}, nil
		},
	}
	runner := NewRunner(store, agent.NewRegistry(card), nil)
	orch := NewOrchestrator(store, intent.NewRuleClassifier(), runner, connectivity.NewStaticProbe(false),
		WithCredentialVerifier(&stubVerifier{expect: "secret"}),
	)

	if err := store.Create(context.Background(), &Task{ID: "t-1", Status: StatusWaiting, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := orch.Resume(context.Background(), "t-1", "wrong"); err == nil {
		t.Fatal("resume with a bad credential must fail")
	} else if xerrors.CodeOf(err) != xerrors.CodeUnauthorized {
		t.Fatalf("unexpected error code: %v", xerrors.CodeOf(err))
	}
	if calls != 0 {
		t.Fatalf("rejected resume must not execute, got %d calls", calls)
	}

	resumed, err := orch.Resume(context.Background(), "t-1", "secret")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != StatusCompleted || resumed.Plan != "recovered" {
		t.Fatalf("unexpected task after resume: %+v", resumed)
	}

	// Resuming a completed task is an idempotent no-op.
	again, err := orch.Resume(context.Background(), "t-1", "secret")
	if err != nil {
		t.Fatalf("resume completed: %v", err)
	}
	if again.Status != StatusCompleted || again.Plan != "recovered" {
		t.Fatalf("resume of a completed task changed it: %+v", again)
	}
	if calls != 1 {
		t.Fatalf("completed task re-executed, got %d calls", calls)
	}
}
