package observe

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/sensekit/pkg/speech"
)

func TestSpeechObserver(t *testing.T) {
	m, reader := newTestMetrics(t)
	o := NewSpeechObserver(m)
	it := speech.Item{Text: "door"}

	o.ItemEnqueued(it)
	o.ItemEnqueued(it)
	o.ItemDropped(it, speech.DropDuplicate)
	o.ItemDispatched(it, 0)
	o.SynthesisFailed(it, errors.New("boom"))
	o.PlaybackCompleted(it, 250*time.Millisecond)

	o.StateChanged(speech.State{QueueCount: 3, ActiveChannels: 2})
	o.StateChanged(speech.State{QueueCount: 1, ActiveChannels: 2})

	rm := collect(t, reader)
	checks := []struct {
		name, key, value string
		want             int64
	}{
		{"sensekit.speech.enqueued", "", "", 2},
		{"sensekit.speech.dropped", "reason", "duplicate", 1},
		{"sensekit.speech.dispatched", "", "", 1},
		{"sensekit.speech.synthesis_failures", "", "", 1},
		{"sensekit.speech.completed", "", "", 1},
		{"sensekit.speech.queue_depth", "", "", 1},
		{"sensekit.speech.active_channels", "", "", 2},
	}
	for _, c := range checks {
		if got := sumWhere(t, rm, c.name, c.key, c.value); got != c.want {
			t.Errorf("%s = %d, want %d", c.name, got, c.want)
		}
	}
	if findMetric(rm, "sensekit.speech.latency") == nil {
		t.Error("latency histogram not recorded")
	}
}

func TestSpeechObserver_ReachesZero(t *testing.T) {
	m, reader := newTestMetrics(t)
	o := NewSpeechObserver(m)

	o.StateChanged(speech.State{QueueCount: 4, ActiveChannels: 1})
	o.StateChanged(speech.State{})

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "sensekit.speech.queue_depth", "", ""); got != 0 {
		t.Errorf("queue depth = %d, want 0", got)
	}
}
