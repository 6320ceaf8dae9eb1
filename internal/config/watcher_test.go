package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/sensekit/internal/config"
)

const watchBaseYAML = `
server:
  log_level: info
speech:
  max_concurrent: 2
providers:
  tts:
    name: elevenlabs
`

const watchTunedYAML = `
server:
  log_level: debug
speech:
  max_concurrent: 4
  spatial_distance: 2.5
providers:
  tts:
    name: elevenlabs
`

const watchRestartYAML = `
server:
  log_level: info
speech:
  max_concurrent: 2
  pool_size: 8
providers:
  tts:
    name: elevenlabs
`

const watchBrokenYAML = `
server:
  log_level: bananas
`

// rewrite replaces the file and pushes its mtime forward so the change is
// visible regardless of filesystem timestamp granularity.
func rewrite(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	ts := time.Now().Add(bump)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// reloadLog collects onChange invocations.
type reloadLog struct {
	mu    sync.Mutex
	pairs [][2]*config.Config
}

func (l *reloadLog) record(old, next *config.Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pairs = append(l.pairs, [2]*config.Config{old, next})
}

func (l *reloadLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pairs)
}

func newWatched(t *testing.T, content string) (string, *config.Watcher, *reloadLog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensekit.yaml")
	rewrite(t, path, content, 0)
	log := &reloadLog{}
	w, err := config.NewWatcher(path, log.record, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return path, w, log
}

func TestWatcher_PrimedWithInitialConfig(t *testing.T) {
	t.Parallel()
	_, w, log := newWatched(t, watchBaseYAML)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil")
	}
	if cfg.Speech.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", cfg.Speech.MaxConcurrent)
	}
	if cfg.Speech.PoolSize != config.DefaultPoolSize {
		t.Errorf("PoolSize = %d, want default %d", cfg.Speech.PoolSize, config.DefaultPoolSize)
	}
	if log.len() != 0 {
		t.Errorf("onChange called %d times during construction", log.len())
	}
}

func TestWatcher_CheckWithoutChange(t *testing.T) {
	t.Parallel()
	_, w, log := newWatched(t, watchBaseYAML)

	changed, err := w.Check()
	if err != nil || changed {
		t.Fatalf("Check() = %v, %v; want false, nil", changed, err)
	}
	if log.len() != 0 {
		t.Errorf("onChange called %d times", log.len())
	}
}

func TestWatcher_CheckAppliesRevision(t *testing.T) {
	t.Parallel()
	path, w, log := newWatched(t, watchBaseYAML)
	before := w.Current()

	rewrite(t, path, watchTunedYAML, time.Second)
	changed, err := w.Check()
	if err != nil || !changed {
		t.Fatalf("Check() = %v, %v; want true, nil", changed, err)
	}

	if log.len() != 1 {
		t.Fatalf("onChange called %d times, want 1", log.len())
	}
	old, next := log.pairs[0][0], log.pairs[0][1]
	if old != before {
		t.Error("onChange old is not the previous Current()")
	}
	if next != w.Current() {
		t.Error("onChange new is not the updated Current()")
	}

	d := config.Diff(old, next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %v/%q, want true/debug", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.MaxConcurrentChanged || d.NewMaxConcurrent != 4 {
		t.Errorf("max_concurrent diff = %v/%d, want true/4", d.MaxConcurrentChanged, d.NewMaxConcurrent)
	}
	if !d.SpatialDistanceChanged || d.NewSpatialDistance != 2.5 {
		t.Errorf("spatial_distance diff = %v/%v, want true/2.5", d.SpatialDistanceChanged, d.NewSpatialDistance)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestWatcher_RestartOnlyChangeStillDelivered(t *testing.T) {
	t.Parallel()
	path, w, log := newWatched(t, watchBaseYAML)

	rewrite(t, path, watchRestartYAML, time.Second)
	if changed, err := w.Check(); err != nil || !changed {
		t.Fatalf("Check() = %v, %v; want true, nil", changed, err)
	}
	d := config.Diff(log.pairs[0][0], log.pairs[0][1])
	if !d.Empty() {
		t.Errorf("diff should carry no hot change: %+v", d)
	}
	if len(d.RestartRequired) != 1 || d.RestartRequired[0] != "speech.pool_size" {
		t.Errorf("RestartRequired = %v, want [speech.pool_size]", d.RestartRequired)
	}
}

func TestWatcher_BrokenRevisionKeepsLastGood(t *testing.T) {
	t.Parallel()
	path, w, log := newWatched(t, watchBaseYAML)
	good := w.Current()

	rewrite(t, path, watchBrokenYAML, time.Second)
	changed, err := w.Check()
	if err == nil || changed {
		t.Fatalf("Check() = %v, %v; want false, error", changed, err)
	}
	if w.Current() != good {
		t.Error("Current() replaced by an invalid revision")
	}

	// Fixing the file afterwards is picked up.
	rewrite(t, path, watchTunedYAML, 2*time.Second)
	if changed, err := w.Check(); err != nil || !changed {
		t.Fatalf("Check() after fix = %v, %v; want true, nil", changed, err)
	}
	if log.len() != 1 {
		t.Errorf("onChange called %d times, want 1", log.len())
	}
}

func TestWatcher_TouchWithSameContent(t *testing.T) {
	t.Parallel()
	path, w, log := newWatched(t, watchBaseYAML)

	ts := time.Now().Add(time.Second)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if changed, err := w.Check(); err != nil || changed {
		t.Fatalf("Check() = %v, %v; want false, nil", changed, err)
	}
	if log.len() != 0 {
		t.Errorf("onChange called %d times for touch-only", log.len())
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}

	path, w, _ := newWatched(t, watchBaseYAML)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := w.Check(); err == nil {
		t.Error("Check() on removed file should fail")
	}
}

func TestWatcher_RunPollsUntilCancelled(t *testing.T) {
	t.Parallel()
	path, w, log := newWatched(t, watchBaseYAML)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	rewrite(t, path, watchTunedYAML, time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for log.len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run did not pick up the new revision")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
