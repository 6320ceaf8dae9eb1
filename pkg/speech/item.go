// Package speech implements the spatial speech scheduler: speech requests
// tagged with a 3D position and a priority are deduplicated, queued by
// priority, synthesised by a TTS provider and played on a fixed pool of
// spatial audio channels.
//
// All mutable scheduling state is owned by a single goroutine. Public
// methods are serialised onto it and return once their effect is visible in
// [Scheduler.State]; they never wait for synthesis or playback.
package speech

import "github.com/MrWong99/sensekit/pkg/spatial"

// Item is a single speech request. It is treated as an immutable value once
// enqueued.
type Item struct {
	// Text is spoken verbatim. It is also the deduplication key.
	Text string `json:"text"`

	// Position is the logical source position relative to the listener.
	Position spatial.Vec3 `json:"position"`

	// Priority orders the queue; higher values are dispatched first.
	Priority int `json:"priority"`

	// AllowRepeat bypasses deduplication against already spoken text.
	AllowRepeat bool `json:"allow_repeat"`
}

// ItemOption customises an [Item] built by [NewItem].
type ItemOption func(*Item)

// AtPosition places the item at the given logical position. The default is
// [spatial.Center].
func AtPosition(p spatial.Vec3) ItemOption {
	return func(it *Item) { it.Position = p }
}

// WithPriority sets the item priority. The default is 0.
func WithPriority(p int) ItemOption {
	return func(it *Item) { it.Priority = p }
}

// AllowRepeat lets the item be spoken even if its text was spoken before.
func AllowRepeat() ItemOption {
	return func(it *Item) { it.AllowRepeat = true }
}

// NewItem builds an item at the listener position with priority 0.
func NewItem(text string, opts ...ItemOption) Item {
	it := Item{Text: text, Position: spatial.Center}
	for _, o := range opts {
		o(&it)
	}
	return it
}
