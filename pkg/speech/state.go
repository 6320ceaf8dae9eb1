package speech

// State is the externally observable scheduler state.
type State struct {
	// IsPlaying is true from the moment an item is dispatched until the
	// scheduler is idle again.
	IsPlaying bool `json:"is_playing"`

	// CurrentItem is the most recently dispatched item, or nil when idle.
	CurrentItem *Item `json:"current_item,omitempty"`

	// QueueCount is the number of items waiting to be dispatched.
	QueueCount int `json:"queue_count"`

	// ActiveChannels is the number of channels currently bound to an item.
	ActiveChannels int `json:"active_channels"`

	// Processing is true while a dispatch holds the processing flag.
	Processing bool `json:"processing"`

	// SpokenCount is the size of the spoken-set.
	SpokenCount int `json:"spoken_count"`
}

func (s State) equal(o State) bool {
	if (s.CurrentItem == nil) != (o.CurrentItem == nil) {
		return false
	}
	if s.CurrentItem != nil && *s.CurrentItem != *o.CurrentItem {
		return false
	}
	return s.IsPlaying == o.IsPlaying &&
		s.QueueCount == o.QueueCount &&
		s.ActiveChannels == o.ActiveChannels &&
		s.Processing == o.Processing &&
		s.SpokenCount == o.SpokenCount
}
