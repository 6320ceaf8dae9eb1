package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/sensekit/pkg/provider/tts"
)

var _ tts.Provider = (*instrumentedTTS)(nil)

type instrumentedTTS struct {
	inner tts.Provider
	name  string
	m     *Metrics
}

// InstrumentTTS wraps p so every synthesis records request counts, errors,
// latency and a span under the given provider name. Latency covers the whole
// stream, from the call until the audio channel closes.
func InstrumentTTS(p tts.Provider, name string, m *Metrics) tts.Provider {
	return &instrumentedTTS{inner: p, name: name, m: m}
}

func (t *instrumentedTTS) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	start := time.Now()
	ctx, span := StartSpan(ctx, "tts.synthesize",
		trace.WithAttributes(
			attribute.String("provider", t.name),
			attribute.String("voice", voice.ID),
		),
	)

	in, err := t.inner.SynthesizeStream(ctx, text, voice)
	if err != nil {
		span.RecordError(err)
		span.End()
		t.m.RecordProviderRequest(ctx, t.name, "tts", "error")
		t.m.RecordProviderError(ctx, t.name, "tts")
		return nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer span.End()

		var n int
		for chunk := range in {
			n += len(chunk)
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Keep draining so the inner provider can exit.
			}
		}

		status := "ok"
		if n == 0 && ctx.Err() == nil {
			status = "error"
			t.m.RecordProviderError(ctx, t.name, "tts")
		}
		span.SetAttributes(attribute.Int("audio_bytes", n))
		t.m.RecordProviderRequest(ctx, t.name, "tts", status)
		t.m.TTSDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("provider", t.name)),
		)
	}()
	return out, nil
}

func (t *instrumentedTTS) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	voices, err := t.inner.ListVoices(ctx)
	if err != nil {
		t.m.RecordProviderError(ctx, t.name, "tts")
	}
	return voices, err
}
