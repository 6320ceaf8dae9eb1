package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/sensekit/pkg/speech"
)

var _ speech.Observer = (*SpeechObserver)(nil)

// SpeechObserver records scheduler events into [Metrics]. Gauges are kept in
// step with [speech.State] by adding the delta from the last published state.
type SpeechObserver struct {
	m *Metrics

	mu     sync.Mutex
	queued int64
	active int64
}

// NewSpeechObserver returns an observer that records into m.
func NewSpeechObserver(m *Metrics) *SpeechObserver {
	return &SpeechObserver{m: m}
}

func (o *SpeechObserver) ItemEnqueued(speech.Item) {
	o.m.ItemsEnqueued.Add(context.Background(), 1)
}

func (o *SpeechObserver) ItemDropped(_ speech.Item, reason speech.DropReason) {
	o.m.ItemsDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", string(reason))),
	)
}

func (o *SpeechObserver) ItemDispatched(speech.Item, int) {
	o.m.ItemsDispatched.Add(context.Background(), 1)
}

func (o *SpeechObserver) SynthesisFailed(speech.Item, error) {
	o.m.SynthesisFailures.Add(context.Background(), 1)
}

func (o *SpeechObserver) PlaybackCompleted(_ speech.Item, latency time.Duration) {
	ctx := context.Background()
	o.m.ItemsCompleted.Add(ctx, 1)
	o.m.SpeechLatency.Record(ctx, latency.Seconds())
}

func (o *SpeechObserver) StateChanged(s speech.State) {
	ctx := context.Background()
	o.mu.Lock()
	defer o.mu.Unlock()
	if d := int64(s.QueueCount) - o.queued; d != 0 {
		o.m.QueueDepth.Add(ctx, d)
		o.queued = int64(s.QueueCount)
	}
	if d := int64(s.ActiveChannels) - o.active; d != 0 {
		o.m.ActiveChannels.Add(ctx, d)
		o.active = int64(s.ActiveChannels)
	}
}
