package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(Config{Mode: ModeToken}); err == nil {
		t.Fatal("token mode without a token must fail")
	}
	if _, err := NewService(Config{Mode: "oauth"}); err == nil {
		t.Fatal("unknown mode must fail")
	}
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if svc.Mode() != ModeDisabled {
		t.Fatalf("default mode = %q", svc.Mode())
	}
}

func TestVerifyCredential(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeToken, Token: "secret"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.VerifyCredential(context.Background(), "secret"); err != nil {
		t.Fatalf("valid credential rejected: %v", err)
	}
	if err := svc.VerifyCredential(context.Background(), "wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if err := svc.VerifyCredential(context.Background(), "  "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}

	disabled, err := NewService(Config{Mode: ModeDisabled})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := disabled.VerifyCredential(context.Background(), ""); err != nil {
		t.Fatalf("disabled mode must accept anything: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeToken, Token: "secret"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	var hits int
	handler := svc.Middleware(MiddlewareConfig{AuditEvent: "test"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer secret", http.StatusNoContent},
		{"case-insensitive scheme", "bearer secret", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
	if hits != 2 {
		t.Fatalf("handler hit %d times, want 2", hits)
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeDisabled})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler := svc.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}
