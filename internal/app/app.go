// Package app wires the sensekit subsystems into a running service.
//
// The App struct owns the full lifecycle: New builds the TTS failover chain,
// the speech scheduler and the HTTP control surface from a validated config,
// Run serves until the context is cancelled, Reload applies hot-reloadable
// config changes, and Shutdown tears everything down in order.
//
// For testing, inject doubles via [Providers] (mock graph, mock TTS) and
// functional options such as [WithMetrics].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sensekit/internal/config"
	"github.com/MrWong99/sensekit/internal/health"
	"github.com/MrWong99/sensekit/internal/observe"
	"github.com/MrWong99/sensekit/internal/resilience"
	"github.com/MrWong99/sensekit/pkg/audio"
	"github.com/MrWong99/sensekit/pkg/provider/tts"
	"github.com/MrWong99/sensekit/pkg/speech"
)

// shutdownGrace bounds how long in-flight HTTP requests may take once Run's
// context is cancelled.
const shutdownGrace = 5 * time.Second

// NamedTTS is a TTS backend together with its config name.
type NamedTTS struct {
	Name     string
	Provider tts.Provider
}

// Providers holds the externally constructed dependencies. Populated by
// main.go via the config registry.
type Providers struct {
	// Graph is the audio backend. Required.
	Graph audio.Graph

	// TTS lists the synthesis backends in failover order. The first entry is
	// the primary. At least one is required.
	TTS []NamedTTS
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	levels   *slog.LevelVar
	log      *slog.Logger
	listener net.Listener

	fallback  *resilience.TTSFallback
	scheduler *speech.Scheduler
	health    *health.Handler
	handler   http.Handler
	server    *http.Server

	// mu guards cfg against concurrent Reload calls.
	mu sync.Mutex

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets Reload adjust the process log level. Without it, log
// level changes are ignored.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levels = lv }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It configures the
// audio environment from cfg, starts the scheduler (which starts the audio
// graph) and builds the HTTP handler. Nothing listens until [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Graph == nil {
		return nil, fmt.Errorf("app: %w", speech.ErrEngineUnavailable)
	}
	if len(providers.TTS) == 0 {
		return nil, errors.New("app: at least one tts provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	a.initSynthesis()

	// ── Environment ──────────────────────────────────────────────────────
	mixer := providers.Graph.Mixer()
	mixer.SetListener(cfg.Environment.Listener.Listener())
	mixer.SetDistanceAttenuation(cfg.Environment.Attenuation.Attenuation())
	mixer.SetReverb(cfg.Environment.Reverb.Reverb())

	// ── Scheduler ────────────────────────────────────────────────────────
	sched, err := speech.New(providers.Graph, a.fallback, a.speechOptions()...)
	if err != nil {
		return nil, fmt.Errorf("app: init scheduler: %w", err)
	}
	a.scheduler = sched

	// ── HTTP ─────────────────────────────────────────────────────────────
	a.health = health.New(
		health.AudioEngine(providers.Graph),
		health.Synthesis(a.fallback),
	)
	mux := http.NewServeMux()
	a.registerRoutes(mux)
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.handler = observe.Middleware(a.metrics, observe.Untraced("/healthz", "/readyz", "/metrics"))(mux)

	a.log.InfoContext(ctx, "app initialised",
		"tts", ttsNames(providers.TTS),
		"pool_size", cfg.Speech.PoolSize,
		"overlap", cfg.Speech.Overlap,
	)
	return a, nil
}

// initSynthesis instruments every TTS backend and chains them into a
// failover group whose breaker transitions feed the metrics.
func (a *App) initSynthesis() {
	breaker := resilience.CircuitBreakerConfig{
		Logger: a.log,
		OnStateChange: func(name string, _, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	}
	cfg := resilience.FallbackConfig{CircuitBreaker: breaker}

	primary := a.providers.TTS[0]
	a.fallback = resilience.NewTTSFallback(observe.InstrumentTTS(primary.Provider, primary.Name, a.metrics), primary.Name, cfg)
	for _, fb := range a.providers.TTS[1:] {
		a.fallback.AddFallback(fb.Name, observe.InstrumentTTS(fb.Provider, fb.Name, a.metrics))
	}
}

func (a *App) speechOptions() []speech.Option {
	sc := a.cfg.Speech
	opts := []speech.Option{
		speech.WithPoolSize(sc.PoolSize),
		speech.WithMaxConcurrent(sc.MaxConcurrent),
		speech.WithDistanceScale(sc.SpatialDistance),
		speech.WithOverlap(sc.Overlap),
		speech.WithSampleRate(sc.SampleRate),
		speech.WithVoice(sc.Voice.Profile(a.providers.TTS[0].Name)),
		speech.WithLogger(a.log),
		speech.WithObserver(observe.NewSpeechObserver(a.metrics)),
	}
	if sc.Volume != nil {
		opts = append(opts, speech.WithVolume(*sc.Volume))
	}
	for _, tr := range a.cfg.Triggers {
		phrase := tr.Phrase
		opts = append(opts, speech.WithTrigger(speech.Trigger{
			Phrase:        phrase,
			CaseSensitive: tr.CaseSensitive,
			Action: func(it speech.Item) {
				a.log.Info("speech trigger matched", "phrase", phrase, "text", it.Text, "priority", it.Priority)
			},
		}))
	}
	return opts
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving the control API, health probes and
// metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Scheduler returns the speech scheduler.
func (a *App) Scheduler() *speech.Scheduler { return a.scheduler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// On cancellation it drains in-flight requests and returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	a.log.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between the running config
// and next. Fields that need a restart are logged and otherwise ignored.
func (a *App) Reload(next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := config.Diff(a.cfg, next)
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart", "fields", d.RestartRequired)
	}
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.levels != nil {
		a.levels.Set(ParseLevel(d.NewLogLevel))
	}
	if d.MaxConcurrentChanged {
		if err := a.scheduler.SetMaxConcurrent(d.NewMaxConcurrent); err != nil {
			a.log.Warn("reload: set max concurrent", "err", err)
		}
	}
	if d.SpatialDistanceChanged {
		if err := a.scheduler.SetDistanceScale(d.NewSpatialDistance); err != nil {
			a.log.Warn("reload: set spatial distance", "err", err)
		}
	}

	mixer := a.scheduler.Mixer()
	if d.ListenerChanged {
		mixer.SetListener(d.NewListener)
	}
	if d.AttenuationChanged {
		mixer.SetDistanceAttenuation(d.NewAttenuation)
	}
	if d.ReverbChanged {
		mixer.SetReverb(d.NewReverb)
	}

	// Keep restart-only fields from the running config so the next diff
	// still reports them.
	applied := *a.cfg
	applied.Server.LogLevel = next.Server.LogLevel
	applied.Speech.MaxConcurrent = next.Speech.MaxConcurrent
	applied.Speech.SpatialDistance = next.Speech.SpatialDistance
	applied.Environment = next.Environment
	a.cfg = &applied

	a.log.Info("config reloaded",
		"log_level", d.LogLevelChanged,
		"max_concurrent", d.MaxConcurrentChanged,
		"spatial_distance", d.SpatialDistanceChanged,
		"listener", d.ListenerChanged,
		"attenuation", d.AttenuationChanged,
		"reverb", d.ReverbChanged,
	)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes the scheduler and stops the audio graph. It respects the
// context deadline: if ctx is already done, teardown is skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")
		if err := ctx.Err(); err != nil {
			shutdownErr = err
			return
		}
		if err := a.scheduler.Close(); err != nil {
			a.log.Warn("scheduler close error", "err", err)
		}
		if err := a.providers.Graph.Stop(); err != nil {
			a.log.Warn("audio graph stop error", "err", err)
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// ParseLevel converts a config log level into an [slog.Level]. Unknown
// values map to info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ttsNames(ps []NamedTTS) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}
