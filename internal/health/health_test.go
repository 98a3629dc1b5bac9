package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func pass(context.Context) error { return nil }

func serve(t *testing.T, h *Handler, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("%s Content-Type = %q", path, ct)
	}
	var rep Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("%s body %q: %v", path, rec.Body.String(), err)
	}
	return rec.Code, rep
}

func TestHealthz_IgnoresCheckers(t *testing.T) {
	called := false
	h := New(Checker{Name: "ffmpeg", Check: func(context.Context) error {
		called = true
		return errors.New("missing")
	}})

	code, rep := serve(t, h, "/healthz")
	if code != http.StatusOK || rep.Status != "ok" || len(rep.Checks) != 0 {
		t.Errorf("healthz = %d %+v, want 200 ok without checks", code, rep)
	}
	if called {
		t.Error("healthz ran a checker")
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "cache", Check: pass}, {Name: "yt-dlp", Check: pass}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "cache", Check: pass},
				{Name: "transcribers", Check: func(context.Context) error { return errors.New("all circuits open") }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, rep := serve(t, New(tt.checkers...), "/readyz")
			if code != tt.wantCode || rep.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, rep.Status, tt.wantCode, tt.wantStatus)
			}
			if len(rep.Checks) != len(tt.checkers) {
				t.Errorf("checks = %d, want %d", len(rep.Checks), len(tt.checkers))
			}
		})
	}
}

func TestReadyz_RejectsOtherMethods(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/readyz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /readyz = %d, want 405", rec.Code)
	}
}

func TestRun_OrderAndErrors(t *testing.T) {
	h := New(
		Checker{Name: "yt-dlp", Check: func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			return errors.New("not found")
		}},
		Checker{Name: "ffmpeg", Check: pass},
		Checker{Name: "cache", Check: pass},
	)
	rep := h.Run(context.Background())

	if rep.OK() {
		t.Fatal("report OK with a failing check")
	}
	var names []string
	for _, r := range rep.Checks {
		names = append(names, r.Name)
	}
	if len(names) != 3 || names[0] != "yt-dlp" || names[1] != "ffmpeg" || names[2] != "cache" {
		t.Errorf("result order = %v, want registration order", names)
	}
	failed := rep.Failed()
	if len(failed) != 1 || failed[0].Error != "not found" || failed[0].LatencyMS < 20 {
		t.Errorf("failed = %+v", failed)
	}
}

func TestRun_ChecksRunConcurrently(t *testing.T) {
	gate := make(chan struct{})
	waiter := func(ctx context.Context) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(
		Checker{Name: "a", Check: waiter},
		Checker{Name: "b", Check: waiter},
		Checker{Name: "opener", Check: func(context.Context) error { close(gate); return nil }},
	)
	h.Timeout = 2 * time.Second
	if rep := h.Run(context.Background()); !rep.OK() {
		t.Errorf("report = %+v; checks should not block each other", rep)
	}
}

func TestRun_Timeout(t *testing.T) {
	h := New(Checker{Name: "cache", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	h.Timeout = 10 * time.Millisecond

	rep := h.Run(context.Background())
	if rep.OK() || rep.Checks[0].Error != context.DeadlineExceeded.Error() {
		t.Errorf("report = %+v, want deadline exceeded", rep)
	}
}
