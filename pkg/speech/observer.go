package speech

import "time"

// DropReason says why an item left the scheduler without being played.
type DropReason string

const (
	DropDuplicate DropReason = "duplicate"
	DropCleared   DropReason = "cleared"
	DropStopped   DropReason = "stopped"
	DropClosed    DropReason = "closed"
	DropRouting   DropReason = "routing"
)

// Observer receives scheduler lifecycle events. Methods are called from the
// scheduler goroutine and must not block or call back into the [Scheduler].
type Observer interface {
	// ItemEnqueued is called when an item is accepted into the queue.
	ItemEnqueued(item Item)

	// ItemDropped is called for every item removed without being played.
	ItemDropped(item Item, reason DropReason)

	// ItemDispatched is called when an item is bound to a channel.
	ItemDispatched(item Item, channel int)

	// SynthesisFailed is called when an item produced no playable audio. err
	// wraps [ErrSynthesisFailed].
	SynthesisFailed(item Item, err error)

	// PlaybackCompleted is called when an item finishes playing. latency is
	// measured from dispatch.
	PlaybackCompleted(item Item, latency time.Duration)

	// StateChanged is called whenever the published [State] changes.
	StateChanged(s State)
}

// NopObserver ignores every event. Embed it to implement a subset of
// [Observer].
type NopObserver struct{}

func (NopObserver) ItemEnqueued(Item)                     {}
func (NopObserver) ItemDropped(Item, DropReason)          {}
func (NopObserver) ItemDispatched(Item, int)              {}
func (NopObserver) SynthesisFailed(Item, error)           {}
func (NopObserver) PlaybackCompleted(Item, time.Duration) {}
func (NopObserver) StateChanged(State)                    {}

var _ Observer = NopObserver{}
