package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newFakeBackend(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func TestSubmitRoundTrip(t *testing.T) {
	client, _ := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload Submission
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode submission: %v", err)
		}
		if payload.Text != "book a table for two" {
			t.Errorf("unexpected text: %q", payload.Text)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Task{ID: "t-1", OriginalRequest: payload.Text, Status: "completed"})
	})

	created, err := client.Submit(context.Background(), Submission{Text: "book a table for two"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if created.ID != "t-1" || created.Status != "completed" {
		t.Fatalf("unexpected task: %+v", created)
	}
}

func TestListBuildsQuery(t *testing.T) {
	client, _ := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("limit") != "5" {
			t.Errorf("limit = %q", query.Get("limit"))
		}
		if query.Get("status") != "planned,waiting_for_internet" {
			t.Errorf("status = %q", query.Get("status"))
		}
		json.NewEncoder(w).Encode(ListResult{Tasks: []Task{{ID: "t-a"}, {ID: "t-b"}}, Count: 2})
	})

	result, err := client.List(context.Background(), 5, "planned", "waiting_for_internet")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Count != 2 || len(result.Tasks) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGetEscapesTaskID(t *testing.T) {
	client, _ := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/v1/tasks/weird%2Fid" {
			t.Errorf("path = %q", r.URL.EscapedPath())
		}
		json.NewEncoder(w).Encode(Task{ID: "weird/id"})
	})

	found, err := client.Get(context.Background(), "weird/id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found.ID != "weird/id" {
		t.Fatalf("unexpected task: %+v", found)
	}
}

func TestTokenAttachedAsBearerAndCredential(t *testing.T) {
	client, _ := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sesame" {
			t.Errorf("authorization header = %q", got)
		}
		var payload struct {
			Credential string `json:"credential"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode resume payload: %v", err)
		}
		if payload.Credential != "sesame" {
			t.Errorf("credential = %q", payload.Credential)
		}
		json.NewEncoder(w).Encode(Task{ID: "t-1", Status: "completed"})
	})

	client.SetToken("sesame")
	resumed, err := client.Resume(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != "completed" {
		t.Fatalf("unexpected task: %+v", resumed)
	}
}

func TestErrorResponsesBecomeAPIErrors(t *testing.T) {
	client, _ := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "任务不存在"})
	})

	_, err := client.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message == "" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestStatsAndConnectivity(t *testing.T) {
	client, _ := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/tasks/stats":
			json.NewEncoder(w).Encode(Stats{Total: 4, Completed: 2, Waiting: 1, Failed: 1})
		case "/api/v1/connectivity":
			json.NewEncoder(w).Encode(map[string]bool{"online": true})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	stats, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Waiting != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	online, err := client.Online(context.Background())
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if !online {
		t.Fatal("expected online")
	}
}
