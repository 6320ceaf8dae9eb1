package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/sensekit/internal/app"
	"github.com/MrWong99/sensekit/internal/config"
	"github.com/MrWong99/sensekit/internal/health"
	"github.com/MrWong99/sensekit/internal/observe"
	"github.com/MrWong99/sensekit/internal/resilience"
	"github.com/MrWong99/sensekit/pkg/audio/mock"
	"github.com/MrWong99/sensekit/pkg/provider/tts"
	ttsmock "github.com/MrWong99/sensekit/pkg/provider/tts/mock"
	"github.com/MrWong99/sensekit/pkg/spatial"
	"github.com/MrWong99/sensekit/pkg/speech"
)

var discard = slog.New(slog.DiscardHandler)

// testConfig returns a defaulted config with a single TTS provider.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			TTS: config.ProviderEntry{Name: "elevenlabs"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type fixture struct {
	app   *app.App
	graph *mock.Graph
	tts   *ttsmock.Provider
	srv   *httptest.Server
}

func newFixture(t *testing.T, cfg *config.Config, p *ttsmock.Provider, opts ...app.Option) *fixture {
	t.Helper()
	if p.SynthesizeChunks == nil {
		p.SynthesizeChunks = [][]byte{make([]byte, 882)}
	}
	g := mock.NewGraph()
	opts = append([]app.Option{app.WithLogger(discard), app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, &app.Providers{
		Graph: g,
		TTS:   []app.NamedTTS{{Name: "elevenlabs", Provider: p}},
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown(context.Background())
	})
	return &fixture{app: a, graph: g, tts: p, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type status struct {
	IsPlaying   bool         `json:"is_playing"`
	CurrentItem *speech.Item `json:"current_item"`
	QueueCount  int          `json:"queue_count"`
	Backends    []struct {
		Name  string `json:"name"`
		State string `json:"state"`
	} `json:"backends"`
}

// ─── New ─────────────────────────────────────────────────────────────────────

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		providers *app.Providers
		wantErr   error
	}{
		{"nil providers", nil, speech.ErrEngineUnavailable},
		{"nil graph", &app.Providers{TTS: []app.NamedTTS{{Name: "x", Provider: &ttsmock.Provider{}}}}, speech.ErrEngineUnavailable},
		{"no tts", &app.Providers{Graph: mock.NewGraph()}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := app.New(context.Background(), testConfig(), tt.providers, app.WithLogger(discard))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_ConfiguresEnvironment(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Environment.Listener.Position = spatial.Vec3{X: 1, Y: 2, Z: 3}
	cfg.Environment.Attenuation.Model = spatial.AttenuationLinear
	off := false
	cfg.Environment.Reverb.Enabled = &off

	f := newFixture(t, cfg, &ttsmock.Provider{})
	env := f.graph.Environment()
	if got := env.Listener().Position; got != cfg.Environment.Listener.Position {
		t.Errorf("listener position = %v, want %v", got, cfg.Environment.Listener.Position)
	}
	if got := env.DistanceAttenuation().Model; got != spatial.AttenuationLinear {
		t.Errorf("attenuation model = %q, want linear", got)
	}
	if env.Reverb().Enabled {
		t.Error("reverb enabled, want disabled")
	}
	if !f.graph.IsRunning() {
		t.Error("graph not started")
	}
	if got := len(f.graph.Players()); got != cfg.Speech.PoolSize {
		t.Errorf("players = %d, want %d", got, cfg.Speech.PoolSize)
	}
}

// ─── Control API ─────────────────────────────────────────────────────────────

func TestAPI_SpeakStatusStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), &ttsmock.Provider{Hold: make(chan struct{})})

	resp := f.do(t, http.MethodPost, "/v1/speak", `{"text":"alpha","direction":"left","priority":2}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("speak status = %d, want 202", resp.StatusCode)
	}
	if got := decode[map[string]bool](t, resp); !got["queued"] {
		t.Errorf("speak response = %v, want queued", got)
	}
	eventually(t, "synthesis in flight", func() bool { return f.tts.Waiting() == 1 })
	f.do(t, http.MethodPost, "/v1/speak", `{"text":"beta"}`)

	st := decode[status](t, f.do(t, http.MethodGet, "/v1/status", ""))
	if !st.IsPlaying || st.QueueCount != 1 {
		t.Errorf("status = %+v, want playing with one queued", st)
	}
	if st.CurrentItem == nil || st.CurrentItem.Text != "alpha" || st.CurrentItem.Position != spatial.Left {
		t.Errorf("current item = %+v", st.CurrentItem)
	}
	if len(st.Backends) != 1 || st.Backends[0].Name != "elevenlabs" || st.Backends[0].State != "closed" {
		t.Errorf("backends = %+v", st.Backends)
	}

	if resp := f.do(t, http.MethodPost, "/v1/stop", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("stop status = %d, want 204", resp.StatusCode)
	}
	st = decode[status](t, f.do(t, http.MethodGet, "/v1/status", ""))
	if st.IsPlaying || st.QueueCount != 0 || st.CurrentItem != nil {
		t.Errorf("status after stop = %+v", st)
	}
}

func TestAPI_SpeakDedupAndClearSpoken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), &ttsmock.Provider{})
	speak := func() bool {
		return decode[map[string]bool](t, f.do(t, http.MethodPost, "/v1/speak", `{"text":"door opens"}`))["queued"]
	}

	if !speak() {
		t.Fatal("first speak not queued")
	}
	if speak() {
		t.Error("repeated text queued")
	}
	if resp := f.do(t, http.MethodDelete, "/v1/spoken", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear spoken status = %d, want 204", resp.StatusCode)
	}
	if !speak() {
		t.Error("text not queued after clearing the spoken cache")
	}
}

func TestAPI_ClearQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), &ttsmock.Provider{Hold: make(chan struct{})})
	f.do(t, http.MethodPost, "/v1/speak", `{"text":"first"}`)
	f.do(t, http.MethodPost, "/v1/speak", `{"text":"second"}`)
	f.do(t, http.MethodPost, "/v1/speak", `{"text":"third"}`)

	items := decode[[]speech.Item](t, f.do(t, http.MethodGet, "/v1/queue", ""))
	if len(items) != 2 {
		t.Fatalf("queued items = %d, want 2", len(items))
	}

	if resp := f.do(t, http.MethodDelete, "/v1/queue", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear queue status = %d, want 204", resp.StatusCode)
	}
	st := decode[status](t, f.do(t, http.MethodGet, "/v1/status", ""))
	if st.QueueCount != 0 || !st.IsPlaying {
		t.Errorf("status after clear = %+v, want empty queue with playback kept", st)
	}
}

func TestAPI_SpeakBadRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), &ttsmock.Provider{})
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"text":`},
		{"unknown field", `{"text":"a","volume":3}`},
		{"position and direction", `{"text":"a","position":{"x":1,"y":0,"z":0},"direction":"left"}`},
		{"unknown direction", `{"text":"a","direction":"sideways"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/v1/speak", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if got := decode[map[string]string](t, resp); got["error"] == "" {
				t.Error("error body is empty")
			}
		})
	}
	if got := f.tts.CallCount(); got != 0 {
		t.Errorf("synthesis calls = %d, want 0", got)
	}
}

func TestAPI_Listener(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), &ttsmock.Provider{})
	resp := f.do(t, http.MethodPut, "/v1/listener", `{"position":{"x":1,"y":0,"z":2},"forward":{"x":0,"y":0,"z":-4}}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	l := f.graph.Environment().Listener()
	if l.Position != (spatial.Vec3{X: 1, Z: 2}) {
		t.Errorf("position = %v", l.Position)
	}
	if l.Forward != spatial.Back {
		t.Errorf("forward = %v, want normalised %v", l.Forward, spatial.Back)
	}
}

func TestAPI_Voices(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig(), &ttsmock.Provider{
			ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
		})
		resp := f.do(t, http.MethodGet, "/v1/voices", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		voices := decode[[]tts.VoiceProfile](t, resp)
		if len(voices) != 1 || voices[0].ID != "v1" {
			t.Errorf("voices = %+v", voices)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig(), &ttsmock.Provider{ListVoicesErr: errors.New("quota")})
		if resp := f.do(t, http.MethodGet, "/v1/voices", ""); resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", resp.StatusCode)
		}
	})
}

func TestAPI_ResetBackend(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), &ttsmock.Provider{ListVoicesErr: errors.New("quota")})
	for range resilience.DefaultMaxFailures {
		f.do(t, http.MethodGet, "/v1/voices", "")
	}

	backendState := func() string {
		t.Helper()
		st := decode[struct {
			Backends []struct {
				Name  string `json:"name"`
				State string `json:"state"`
			} `json:"backends"`
		}](t, f.do(t, http.MethodGet, "/v1/status", ""))
		if len(st.Backends) != 1 || st.Backends[0].Name != "elevenlabs" {
			t.Fatalf("backends = %+v", st.Backends)
		}
		return st.Backends[0].State
	}
	if got := backendState(); got != "open" {
		t.Fatalf("backend state = %q, want open", got)
	}

	if resp := f.do(t, http.MethodPost, "/v1/backends/elevenlabs/reset", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset = %d, want 204", resp.StatusCode)
	}
	if got := backendState(); got != "closed" {
		t.Errorf("backend state after reset = %q, want closed", got)
	}
	if resp := f.do(t, http.MethodPost, "/v1/backends/piper/reset", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("reset unknown = %d, want 404", resp.StatusCode)
	}
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), &ttsmock.Provider{})
	if resp := f.do(t, http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d, want 200", resp.StatusCode)
	}

	resp := f.do(t, http.MethodGet, "/readyz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz = %d, want 200", resp.StatusCode)
	}
	body := decode[health.Report](t, resp)
	if body.Checks["audio"].Status != health.StatusOK || body.Checks["tts"].Status != health.StatusOK {
		t.Errorf("readyz checks = %v", body.Checks)
	}

	if resp := f.do(t, http.MethodGet, "/metrics", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("metrics = %d, want 200", resp.StatusCode)
	}
}

func TestAPI_AfterShutdown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), &ttsmock.Provider{})
	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	closed := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/v1/stop", ""},
		{http.MethodPost, "/v1/speak", `{"text":"too late"}`},
		{http.MethodGet, "/v1/queue", ""},
		{http.MethodGet, "/v1/status", ""},
		{http.MethodDelete, "/v1/spoken", ""},
	}
	for _, c := range closed {
		resp := f.do(t, c.method, c.path, c.body)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s %s after shutdown = %d, want 503", c.method, c.path, resp.StatusCode)
			continue
		}
		if body := decode[map[string]string](t, resp); body["error"] == "" {
			t.Errorf("%s %s after shutdown: empty error body", c.method, c.path)
		}
	}
	if f.graph.IsRunning() {
		t.Error("graph still running after shutdown")
	}
	resp := f.do(t, http.MethodGet, "/readyz", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz after shutdown = %d, want 503", resp.StatusCode)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

func TestReload_AppliesHotFields(t *testing.T) {
	t.Parallel()

	var lv slog.LevelVar
	cfg := testConfig()
	f := newFixture(t, cfg, &ttsmock.Provider{}, app.WithLevelVar(&lv))

	next := *cfg
	next.Server.LogLevel = config.LogDebug
	next.Speech.MaxConcurrent = 1
	next.Environment.Listener.Position = spatial.Vec3{X: 5}
	next.Environment.Attenuation.RolloffFactor = 2
	next.Environment.Reverb.Preset = spatial.ReverbHall
	f.app.Reload(&next)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}
	env := f.graph.Environment()
	if env.Listener().Position != (spatial.Vec3{X: 5}) {
		t.Errorf("listener position = %v", env.Listener().Position)
	}
	if env.DistanceAttenuation().RolloffFactor != 2 {
		t.Errorf("rolloff = %g, want 2", env.DistanceAttenuation().RolloffFactor)
	}
	if env.Reverb().Preset != spatial.ReverbHall {
		t.Errorf("reverb preset = %q, want hall", env.Reverb().Preset)
	}

	// Reloading the same file again is a no-op.
	env.SetListener(spatial.DefaultListener())
	f.app.Reload(&next)
	if env.Listener().Position != spatial.Center {
		t.Error("unchanged config reapplied the listener")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

func TestRun_ServesUntilCancelled(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := newFixture(t, testConfig(), &ttsmock.Provider{}, app.WithListener(ln))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx) }()

	url := "http://" + ln.Addr().String()
	eventually(t, "server up", func() bool {
		resp, err := http.Post(url+"/v1/speak", "application/json", bytes.NewBufferString(`{"text":"hello"}`))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusAccepted
	})

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
