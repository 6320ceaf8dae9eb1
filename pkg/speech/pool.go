package speech

import "github.com/MrWong99/sensekit/pkg/audio"

// ChannelState is the lifecycle state of a [Channel].
type ChannelState int

const (
	ChannelAvailable ChannelState = iota
	ChannelActive
)

func (s ChannelState) String() string {
	if s == ChannelActive {
		return "active"
	}
	return "available"
}

// Channel is one spatial playback path: a player node connected to the
// environment mixer. While active it is bound to the text it is speaking and
// to the unique token of the dispatch that acquired it.
type Channel struct {
	id    int
	node  audio.PlayerNode
	state ChannelState
	key   string
	token string
}

func (c *Channel) ID() int                { return c.id }
func (c *Channel) Node() audio.PlayerNode { return c.node }
func (c *Channel) State() ChannelState    { return c.state }

// Key returns the text the channel is bound to, or "" when available.
func (c *Channel) Key() string { return c.key }

// Token returns the dispatch token the channel is bound to, or "" when
// available.
func (c *Channel) Token() string { return c.token }

// ChannelInfo is a read-only snapshot of a [Channel].
type ChannelInfo struct {
	ID    int          `json:"id"`
	State ChannelState `json:"state"`
	Key   string       `json:"key,omitempty"`
}

// ChannelPool is a fixed-size set of channels. Its size never changes after
// construction.
//
// A ChannelPool is not safe for concurrent use.
type ChannelPool struct {
	channels []*Channel
	active   int
}

// NewChannelPool wraps each node in a channel, all initially available.
func NewChannelPool(nodes []audio.PlayerNode) *ChannelPool {
	p := &ChannelPool{channels: make([]*Channel, len(nodes))}
	for i, n := range nodes {
		p.channels[i] = &Channel{id: i, node: n}
	}
	return p
}

// Acquire moves the lowest-numbered available channel to active and binds it
// to key and token in the same step. It reports false when every channel is
// active or token is empty.
func (p *ChannelPool) Acquire(key, token string) (*Channel, bool) {
	if token == "" {
		return nil, false
	}
	for _, c := range p.channels {
		if c.state == ChannelAvailable {
			c.state = ChannelActive
			c.key = key
			c.token = token
			p.active++
			return c, true
		}
	}
	return nil, false
}

// Release returns c to the available set and clears its binding. Releasing
// an available channel is a no-op; the result reports whether c changed.
func (p *ChannelPool) Release(c *Channel) bool {
	if c == nil || c.state != ChannelActive {
		return false
	}
	c.state = ChannelAvailable
	c.key = ""
	c.token = ""
	p.active--
	return true
}

// ReleaseAll releases every active channel and returns how many were
// released.
func (p *ChannelPool) ReleaseAll() int {
	n := 0
	for _, c := range p.channels {
		if p.Release(c) {
			n++
		}
	}
	return n
}

// FindByKey returns the lowest-numbered active channel bound to key. Keys
// are not unique once repeats play concurrently, so completions are routed
// with [ChannelPool.FindByToken]; FindByKey answers whether a text is
// audible at all.
func (p *ChannelPool) FindByKey(key string) (*Channel, bool) {
	for _, c := range p.channels {
		if c.state == ChannelActive && c.key == key {
			return c, true
		}
	}
	return nil, false
}

// FindByToken returns the active channel bound to token.
func (p *ChannelPool) FindByToken(token string) (*Channel, bool) {
	if token == "" {
		return nil, false
	}
	for _, c := range p.channels {
		if c.state == ChannelActive && c.token == token {
			return c, true
		}
	}
	return nil, false
}

func (p *ChannelPool) Size() int           { return len(p.channels) }
func (p *ChannelPool) ActiveCount() int    { return p.active }
func (p *ChannelPool) AvailableCount() int { return len(p.channels) - p.active }

// Channels returns every channel in ID order.
func (p *ChannelPool) Channels() []*Channel {
	return append([]*Channel(nil), p.channels...)
}

// Snapshot returns the state of every channel in ID order.
func (p *ChannelPool) Snapshot() []ChannelInfo {
	out := make([]ChannelInfo, len(p.channels))
	for i, c := range p.channels {
		out[i] = ChannelInfo{ID: c.id, State: c.state, Key: c.key}
	}
	return out
}

// MarshalText implements [encoding.TextMarshaler].
func (s ChannelState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
