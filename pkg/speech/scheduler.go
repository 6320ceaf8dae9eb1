package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/sensekit/pkg/audio"
	"github.com/MrWong99/sensekit/pkg/provider/tts"
	"github.com/MrWong99/sensekit/pkg/spatial"
)

// dispatch is one in-flight item: from channel acquisition through synthesis
// to the end of playback. Callbacks carrying a dispatch whose generation or
// token no longer matches the scheduler are stale and ignored.
type dispatch struct {
	token   string
	gen     uint64
	item    Item
	ch      *Channel
	cancel  context.CancelFunc
	started time.Time
}

// Scheduler queues speech items, synthesises them and plays them on a pool
// of spatial channels. It is safe for concurrent use.
type Scheduler struct {
	graph audio.Graph
	mixer audio.SpatialMixer
	tts   tts.Provider
	opts  options
	log   *slog.Logger
	obs   Observer

	cmds      chan func()
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	queue      *RequestQueue
	pool       *ChannelPool
	gen        uint64
	genCtx     context.Context
	genCancel  context.CancelFunc
	processing bool
	holder     string
	current    *Item
	inflight   map[string]*dispatch

	mu    sync.RWMutex
	state State
}

// New creates the channel pool on g, connects every channel to the graph
// mixer, starts the graph and returns a running scheduler.
//
// A nil graph yields [ErrEngineUnavailable]. A graph that fails to start
// yields [ErrEngineStartFailed]; the scheduler is not created and start is
// not retried.
func New(g audio.Graph, provider tts.Provider, opts ...Option) (*Scheduler, error) {
	if g == nil {
		return nil, ErrEngineUnavailable
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: nil tts provider", ErrInvalidOption)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		graph:    g,
		mixer:    g.Mixer(),
		tts:      provider,
		opts:     o,
		log:      o.logger,
		obs:      o.observer,
		cmds:     make(chan func()),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		queue:    NewRequestQueue(),
		inflight: make(map[string]*dispatch),
	}
	if s.mixer == nil {
		return nil, fmt.Errorf("%w: graph has no mixer", ErrEngineUnavailable)
	}

	nodes := make([]audio.PlayerNode, 0, o.poolSize)
	for i := range o.poolSize {
		node, err := g.NewPlayer()
		if err != nil {
			s.detach(nodes)
			return nil, fmt.Errorf("%w: create channel %d: %w", ErrEngineUnavailable, i, err)
		}
		nodes = append(nodes, node)
		if err := g.Attach(node); err != nil {
			s.detach(nodes)
			return nil, fmt.Errorf("%w: attach channel %d: %w", ErrEngineUnavailable, i, err)
		}
		if err := g.Connect(node, s.mixer, s.format()); err != nil {
			s.detach(nodes)
			return nil, fmt.Errorf("%w: connect channel %d: %w", ErrEngineUnavailable, i, err)
		}
	}
	s.pool = NewChannelPool(nodes)

	if !g.IsRunning() {
		if err := g.Start(); err != nil {
			s.detach(nodes)
			return nil, fmt.Errorf("%w: %w", ErrEngineStartFailed, err)
		}
	}

	s.genCtx, s.genCancel = context.WithCancel(context.Background())
	s.publish()

	s.log.Info("speech: scheduler started",
		"channels", o.poolSize,
		"max_concurrent", o.maxConcurrent,
		"overlap", o.overlap,
		"sample_rate", o.sampleRate,
	)
	go s.loop()
	return s, nil
}

// ─── Public operations ───────────────────────────────────────────────────────

// Enqueue adds item to the queue and starts dispatching if the scheduler is
// idle. It reports false when the item was rejected as a duplicate or the
// scheduler is closed; use [Scheduler.TryEnqueue] to tell the two apart.
func (s *Scheduler) Enqueue(item Item) bool {
	ok, err := s.TryEnqueue(item)
	return err == nil && ok
}

// TryEnqueue is Enqueue with the closed case reported as [ErrClosed]. A
// duplicate yields (false, nil).
func (s *Scheduler) TryEnqueue(item Item) (bool, error) {
	var ok bool
	err := s.do(func() {
		ok = s.enqueue(item)
		if ok {
			s.processQueue()
		}
		s.publish()
	})
	return ok, err
}

// EnqueueBatch adds items in order and returns how many were accepted.
// Dispatch starts only after the whole batch is queued, so the batch is
// played in priority order.
func (s *Scheduler) EnqueueBatch(items []Item) int {
	n := 0
	_ = s.do(func() {
		for _, it := range items {
			if s.enqueue(it) {
				n++
			}
		}
		s.processQueue()
		s.publish()
	})
	return n
}

// Speak is shorthand for Enqueue(NewItem(text, opts...)).
func (s *Scheduler) Speak(text string, opts ...ItemOption) bool {
	return s.Enqueue(NewItem(text, opts...))
}

// SpeakAt enqueues text at the logical position (x, y, z).
func (s *Scheduler) SpeakAt(text string, x, y, z float64, priority int) bool {
	return s.Enqueue(Item{Text: text, Position: spatial.Vec3{X: x, Y: y, Z: z}, Priority: priority})
}

// Stop halts every active channel, drops all queued items and returns the
// scheduler to idle. Completions from items that were in flight are ignored
// afterwards. The spoken-set is kept. Stop is idempotent.
func (s *Scheduler) Stop() error {
	return s.do(func() { s.stopAll(DropStopped) })
}

// ClearQueue drops every queued item. Active playback continues.
func (s *Scheduler) ClearQueue() error {
	return s.do(func() {
		s.dropQueued(DropCleared)
		s.publish()
	})
}

// ClearSpokenCache forgets every spoken text so it may be spoken again.
func (s *Scheduler) ClearSpokenCache() error {
	return s.do(func() {
		n := s.queue.SpokenCount()
		s.queue.ClearSpoken()
		s.log.Debug("speech: spoken cache cleared", "texts", n)
		s.publish()
	})
}

// UpdateListenerPosition moves the listener. forward is the facing
// direction; a zero vector keeps the current facing.
func (s *Scheduler) UpdateListenerPosition(position, forward spatial.Vec3) error {
	return s.do(func() {
		l := s.mixer.Listener()
		l.Position = position
		if !forward.IsZero() {
			l.Forward = forward.Normalize()
		}
		if l.Up.IsZero() {
			l.Up = spatial.WorldUp
		}
		s.mixer.SetListener(l)
	})
}

// SetMaxConcurrent changes the concurrency cap, clamped to [1, pool size].
// Raising the cap may dispatch queued items immediately.
func (s *Scheduler) SetMaxConcurrent(n int) error {
	return s.do(func() {
		s.opts.maxConcurrent = clampConcurrency(n, s.pool.Size())
		s.processQueue()
		s.publish()
	})
}

// SetDistanceScale changes the position multiplier for future dispatches.
func (s *Scheduler) SetDistanceScale(f float64) error {
	if f < 0 {
		return fmt.Errorf("%w: distance scale %g must not be negative", ErrInvalidOption, f)
	}
	return s.do(func() { s.opts.distanceScale = f })
}

// Mixer returns the environment node shared by every channel.
func (s *Scheduler) Mixer() audio.SpatialMixer { return s.mixer }

// State returns the most recently published state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if st.CurrentItem != nil {
		it := *st.CurrentItem
		st.CurrentItem = &it
	}
	return st
}

// IsPlaying reports whether any channel is currently bound to an item.
func (s *Scheduler) IsPlaying() bool { return s.State().IsPlaying }

// CurrentItem returns the most recently dispatched item that is still
// synthesising or playing, or nil when idle.
func (s *Scheduler) CurrentItem() *Item { return s.State().CurrentItem }

// QueueCount returns the number of items waiting for dispatch.
func (s *Scheduler) QueueCount() int { return s.State().QueueCount }

// IsSpeaking reports whether text currently holds a channel, either while
// it is being synthesised or while it plays.
func (s *Scheduler) IsSpeaking(text string) (bool, error) {
	var ok bool
	err := s.do(func() { _, ok = s.pool.FindByKey(text) })
	return ok, err
}

// Channels returns a snapshot of the channel pool, or [ErrClosed].
func (s *Scheduler) Channels() ([]ChannelInfo, error) {
	var out []ChannelInfo
	err := s.do(func() { out = s.pool.Snapshot() })
	return out, err
}

// QueuedItems returns the queued items in dispatch order, or [ErrClosed].
func (s *Scheduler) QueuedItems() ([]Item, error) {
	var out []Item
	err := s.do(func() { out = s.queue.Items() })
	return out, err
}

// Close stops playback, disconnects every channel and terminates the
// scheduler goroutine. The graph itself is left running for its owner to
// stop. Close is idempotent.
func (s *Scheduler) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		_ = s.do(func() {
			s.stopAll(DropClosed)
			s.genCancel()
			for _, ch := range s.pool.Channels() {
				if err := s.graph.Disconnect(ch.Node()); err != nil {
					errs = append(errs, fmt.Errorf("disconnect channel %d: %w", ch.ID(), err))
				}
			}
		})
		close(s.quit)
		<-s.loopDone
		s.log.Info("speech: scheduler closed")
	})
	return errors.Join(errs...)
}

// ─── Loop plumbing ───────────────────────────────────────────────────────────

func (s *Scheduler) loop() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it to return.
func (s *Scheduler) do(fn func()) error {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { defer close(done); fn() }:
	case <-s.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// post runs fn on the loop goroutine without waiting. It is used by
// callbacks that may themselves run on the loop goroutine.
func (s *Scheduler) post(fn func()) {
	go func() {
		select {
		case s.cmds <- fn:
		case <-s.quit:
		}
	}()
}

// ─── Scheduling (loop goroutine only) ────────────────────────────────────────

func (s *Scheduler) format() audio.Format { return audio.MonoFormat(s.opts.sampleRate) }

// detach unwires nodes that New created before it gave up, so the caller's
// graph can be reused for another attempt.
func (s *Scheduler) detach(nodes []audio.PlayerNode) {
	for _, n := range nodes {
		if err := s.graph.Disconnect(n); err != nil {
			s.log.Warn("speech: detach channel", "node", n.ID(), "err", err)
		}
	}
}

func (s *Scheduler) enqueue(item Item) bool {
	if !s.queue.Enqueue(item) {
		s.log.Debug("speech: duplicate dropped", "text", item.Text)
		s.obs.ItemDropped(item, DropDuplicate)
		return false
	}
	s.obs.ItemEnqueued(item)
	return true
}

func (s *Scheduler) canDispatch() bool {
	return !s.processing &&
		s.queue.Len() > 0 &&
		s.pool.ActiveCount() < s.opts.maxConcurrent &&
		s.pool.AvailableCount() > 0
}

func (s *Scheduler) processQueue() {
	for s.canDispatch() {
		s.dispatchNext()
	}
}

func (s *Scheduler) dispatchNext() {
	item, ok := s.queue.DequeueHighest()
	if !ok {
		return
	}
	if !item.AllowRepeat {
		s.queue.MarkSpoken(item.Text)
	}

	token := uuid.NewString()
	ch, ok := s.pool.Acquire(item.Text, token)
	if !ok {
		return
	}
	s.processing = true
	s.holder = token
	s.current = &item

	params := spatial.Position(item.Position, s.opts.distanceScale)
	if err := s.route(ch.Node(), params); err != nil {
		s.log.Warn("speech: failed to position channel", "err", err, "channel", ch.ID(), "text", item.Text)
		s.pool.Release(ch)
		s.processing = false
		s.holder = ""
		s.current = nil
		s.obs.ItemDropped(item, DropRouting)
		return
	}

	ctx, cancel := context.WithCancel(s.genCtx)
	d := &dispatch{
		token:   token,
		gen:     s.gen,
		item:    item,
		ch:      ch,
		cancel:  cancel,
		started: time.Now(),
	}
	s.inflight[token] = d

	s.log.Debug("speech: dispatched",
		"text", item.Text,
		"priority", item.Priority,
		"channel", ch.ID(),
		"position", params.Point.String(),
	)
	s.obs.ItemDispatched(item, ch.ID())
	s.fireTriggers(item)

	go s.synthesize(ctx, d)
}

// route places node at params. The node is disconnected first so the
// backend picks up the new parameters on reconnect.
func (s *Scheduler) route(node audio.PlayerNode, params spatial.Params) error {
	if err := s.graph.Disconnect(node); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	node.SetSpatial(params)
	if err := s.graph.Connect(node, s.mixer, s.format()); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (s *Scheduler) fireTriggers(item Item) {
	for _, t := range s.opts.triggers {
		if t.Action != nil && t.Matches(item.Text) {
			go t.Action(item)
		}
	}
}

// synthesize runs on its own goroutine.
func (s *Scheduler) synthesize(ctx context.Context, d *dispatch) {
	pcm, err := tts.Synthesize(ctx, s.tts, d.item.Text, s.opts.voice)
	if ctx.Err() != nil {
		return
	}
	var buf *audio.Buffer
	if err == nil {
		buf, err = audio.NewBufferPCM16(pcm, s.format())
	}
	if err != nil {
		s.post(func() { s.onSynthesisFailed(d, err) })
		return
	}
	if s.opts.volume != 1 {
		buf.Scale(float32(s.opts.volume))
	}
	s.post(func() { s.onBuffer(d, buf) })
}

func (s *Scheduler) live(d *dispatch) bool {
	return d.gen == s.gen && s.inflight[d.token] == d && d.ch.Token() == d.token
}

func (s *Scheduler) onBuffer(d *dispatch, buf *audio.Buffer) {
	if !s.live(d) {
		return
	}
	node := d.ch.Node()
	err := node.Schedule(buf, func() {
		s.post(func() { s.onPlaybackDone(d) })
	})
	if err != nil {
		s.onSynthesisFailed(d, fmt.Errorf("schedule buffer: %w", err))
		return
	}
	if !node.IsPlaying() {
		node.Play()
	}
	if s.opts.overlap && s.holder == d.token {
		s.processing = false
		s.holder = ""
		s.processQueue()
	}
	s.publish()
}

func (s *Scheduler) onPlaybackDone(d *dispatch) {
	if !s.live(d) {
		return
	}
	s.finish(d)
	s.obs.PlaybackCompleted(d.item, time.Since(d.started))
	s.settle()
}

func (s *Scheduler) onSynthesisFailed(d *dispatch, err error) {
	if !s.live(d) {
		return
	}
	s.log.Warn("speech: synthesis failed", "err", err, "text", d.item.Text, "channel", d.ch.ID())
	s.finish(d)
	s.obs.SynthesisFailed(d.item, fmt.Errorf("%w: %w", ErrSynthesisFailed, err))
	s.settle()
}

// finish releases everything a dispatch holds.
func (s *Scheduler) finish(d *dispatch) {
	delete(s.inflight, d.token)
	d.cancel()
	s.pool.Release(d.ch)
	if s.holder == d.token {
		s.processing = false
		s.holder = ""
	}
}

// settle clears the current item once idle, then dispatches what is next.
func (s *Scheduler) settle() {
	if s.pool.ActiveCount() == 0 && !s.processing {
		s.current = nil
	}
	s.processQueue()
	s.publish()
}

func (s *Scheduler) dropQueued(reason DropReason) int {
	items := s.queue.Items()
	s.queue.Clear()
	for _, it := range items {
		s.obs.ItemDropped(it, reason)
	}
	return len(items)
}

func (s *Scheduler) stopAll(reason DropReason) {
	s.gen++
	s.genCancel()
	s.genCtx, s.genCancel = context.WithCancel(context.Background())

	for _, d := range s.inflight {
		d.cancel()
		d.ch.Node().Stop()
		s.obs.ItemDropped(d.item, reason)
	}
	clear(s.inflight)
	released := s.pool.ReleaseAll()
	dropped := s.dropQueued(reason)

	s.processing = false
	s.holder = ""
	s.current = nil
	if released > 0 || dropped > 0 {
		s.log.Info("speech: stopped", "reason", string(reason), "channels", released, "queued", dropped)
	}
	s.publish()
}

// publish copies the loop state into the readable snapshot and notifies the
// observer when it changed.
func (s *Scheduler) publish() {
	active := s.pool.ActiveCount()
	st := State{
		IsPlaying:      s.processing || active > 0,
		QueueCount:     s.queue.Len(),
		ActiveChannels: active,
		Processing:     s.processing,
		SpokenCount:    s.queue.SpokenCount(),
	}
	if s.current != nil {
		it := *s.current
		st.CurrentItem = &it
	}

	s.mu.Lock()
	changed := !s.state.equal(st)
	s.state = st
	s.mu.Unlock()

	if changed {
		s.obs.StateChanged(st)
	}
}
