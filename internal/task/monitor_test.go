package task

import (
	"context"
	"errors"
	"testing"

	"github.com/Himanshu-is-code/AMD-HACK/internal/connectivity"
)

type recordingProducer struct {
	published []string
	fail      bool
}

func (p *recordingProducer) Publish(_ context.Context, taskID string) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.published = append(p.published, taskID)
	return nil
}

func (p *recordingProducer) Close() error {
	return nil
}

func seedWaitingTasks(t *testing.T, store Store) {
	t.Helper()
	seed := []struct {
		id        string
		status    Status
		createdAt int64
	}{
		{"t-newest", StatusWaiting, 300},
		{"t-oldest", StatusWaiting, 100},
		{"t-middle", StatusWaiting, 200},
		{"t-done", StatusCompleted, 50},
		{"t-planned", StatusPlanned, 60},
	}
	for _, item := range seed {
		if err := store.Create(context.Background(), &Task{
			ID:        item.id,
			Status:    item.status,
			CreatedAt: item.createdAt,
			MaxRetries: 3,
		}); err != nil {
			t.Fatalf("create %s: %v", item.id, err)
		}
	}
}

func TestMonitorSweepDispatchesOldestFirst(t *testing.T) {
	store := NewMemoryStore()
	seedWaitingTasks(t, store)
	producer := &recordingProducer{}
	probe := connectivity.NewStaticProbe(true)
	monitor := NewMonitor(store, probe, producer)

	n, err := monitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 3 {
		t.Fatalf("unexpected dispatch count: got %d want 3", n)
	}
	want := []string{"t-oldest", "t-middle", "t-newest"}
	for i, id := range want {
		if producer.published[i] != id {
			t.Fatalf("dispatch order wrong at %d: got %q want %q", i, producer.published[i], id)
		}
	}
}

func TestMonitorSweepSkipsWhileOffline(t *testing.T) {
	store := NewMemoryStore()
	seedWaitingTasks(t, store)
	producer := &recordingProducer{}
	probe := connectivity.NewStaticProbe(false)
	monitor := NewMonitor(store, probe, producer)

	n, err := monitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 || len(producer.published) != 0 {
		t.Fatalf("offline sweep must not dispatch, got %d", n)
	}

	// Flapping back online dispatches everything that queued up.
	probe.Set(true)
	n, err = monitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 3 {
		t.Fatalf("unexpected dispatch count after reconnect: %d", n)
	}
}

func TestMonitorSweepSurfacesPublishErrors(t *testing.T) {
	store := NewMemoryStore()
	seedWaitingTasks(t, store)
	producer := &recordingProducer{fail: true}
	monitor := NewMonitor(store, connectivity.NewStaticProbe(true), producer)

	if _, err := monitor.Sweep(context.Background()); err == nil {
		t.Fatal("publish failure must surface from sweep")
	}
}
