// Package health checks the external dependencies of a wordsplice run:
// the yt-dlp and ffmpeg binaries, the verification cache and the
// transcription backends.
//
// The same [Report] is printed by "wordsplice check" and served as JSON on
// the metrics listener, where GET /healthz always answers 200 and
// GET /readyz answers 503 unless every check passes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check when [Handler.Timeout] is zero.
const DefaultTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when it is usable and
// must give up when ctx is done.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Result is the outcome of one [Checker].
type Result struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report holds the results of one run in registration order.
type Report struct {
	Status string   `json:"status"`
	Checks []Result `json:"checks,omitempty"`
}

// OK reports whether every check passed.
func (r Report) OK() bool { return r.Status == "ok" }

// Failed returns the results that did not pass.
func (r Report) Failed() []Result {
	var out []Result
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

// Handler runs a fixed set of checkers.
type Handler struct {
	// Timeout bounds each check. Zero means [DefaultTimeout].
	Timeout time.Duration

	checkers []Checker
}

// New returns a Handler for checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Run executes all checkers concurrently and waits for them.
func (h *Handler) Run(ctx context.Context) Report {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	results := make([]Result, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			err := c.Check(cctx)
			results[i] = Result{Name: c.Name, OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: "ok", Checks: results}
	for _, r := range results {
		if !r.OK {
			rep.Status = "fail"
			break
		}
	}
	return rep
}

// Register mounts GET /healthz and GET /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeReport(w, Report{Status: "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, h.Run(r.Context()))
	})
}

func writeReport(w http.ResponseWriter, rep Report) {
	body, err := json.Marshal(rep)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if rep.OK() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = w.Write(append(body, '\n'))
}
