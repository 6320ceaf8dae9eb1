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

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) Report {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return rep
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	// Liveness ignores checkers entirely.
	h := New(Checker{Name: "audio", Check: failWith("device lost")})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	rep := decodeReport(t, rec)
	if rep.Status != StatusOK || len(rep.Checks) != 0 {
		t.Errorf("report = %+v, want bare ok", rep)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		checkers []Checker
		wantCode int
		want     Status
		wantEach map[string]Status
	}{
		{
			name:     "no checkers",
			wantCode: http.StatusOK,
			want:     StatusOK,
			wantEach: map[string]Status{},
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "audio", Check: pass},
				{Name: "tts", Check: pass, Optional: true},
			},
			wantCode: http.StatusOK,
			want:     StatusOK,
			wantEach: map[string]Status{"audio": StatusOK, "tts": StatusOK},
		},
		{
			name: "optional fails",
			checkers: []Checker{
				{Name: "audio", Check: pass},
				{Name: "tts", Check: failWith("all breakers open"), Optional: true},
			},
			wantCode: http.StatusOK,
			want:     StatusDegraded,
			wantEach: map[string]Status{"audio": StatusOK, "tts": StatusFail},
		},
		{
			name: "required fails",
			checkers: []Checker{
				{Name: "audio", Check: failWith("device lost")},
				{Name: "tts", Check: pass, Optional: true},
			},
			wantCode: http.StatusServiceUnavailable,
			want:     StatusFail,
			wantEach: map[string]Status{"audio": StatusFail, "tts": StatusOK},
		},
		{
			name: "required and optional fail",
			checkers: []Checker{
				{Name: "audio", Check: failWith("device lost")},
				{Name: "tts", Check: failWith("all breakers open"), Optional: true},
			},
			wantCode: http.StatusServiceUnavailable,
			want:     StatusFail,
			wantEach: map[string]Status{"audio": StatusFail, "tts": StatusFail},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(tt.checkers...).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			rep := decodeReport(t, rec)
			if rep.Status != tt.want {
				t.Errorf("status = %q, want %q", rep.Status, tt.want)
			}
			if len(rep.Checks) != len(tt.wantEach) {
				t.Errorf("got %d checks, want %d", len(rep.Checks), len(tt.wantEach))
			}
			for name, want := range tt.wantEach {
				got := rep.Checks[name]
				if got.Status != want {
					t.Errorf("%s = %q, want %q", name, got.Status, want)
				}
				if (got.Status == StatusFail) != (got.Error != "") {
					t.Errorf("%s error %q inconsistent with status %q", name, got.Error, got.Status)
				}
			}
		})
	}
}

func TestEvaluate_TimeoutCancelsChecks(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}).WithTimeout(20 * time.Millisecond)

	start := time.Now()
	rep := h.Evaluate(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Evaluate took %v, timeout not applied", elapsed)
	}
	if rep.Status != StatusFail || rep.Checks["slow"].Error == "" {
		t.Errorf("report = %+v, want failed slow check", rep)
	}
}

func TestWithTimeout_LeavesOriginal(t *testing.T) {
	t.Parallel()
	h := New()
	short := h.WithTimeout(time.Millisecond)
	if h.timeout != DefaultTimeout {
		t.Errorf("original timeout = %v, want %v", h.timeout, DefaultTimeout)
	}
	if short.timeout != time.Millisecond {
		t.Errorf("copy timeout = %v, want 1ms", short.timeout)
	}
	if h.WithTimeout(0).timeout != DefaultTimeout {
		t.Error("non-positive timeout should be ignored")
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Checker{Name: "audio", Check: failWith("device lost")}).Register(mux)

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusServiceUnavailable,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, want)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /healthz = %d, want 405", rec.Code)
	}
}
