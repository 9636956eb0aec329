package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/logger"
)

// Trigger names what finalized a group.
type Trigger string

const (
	TriggerTimer    Trigger = "timer"
	TriggerStale    Trigger = "stale"
	TriggerShutdown Trigger = "shutdown"
)

// Group accumulates the fragments of one album until it is flushed.
type Group struct {
	ID        string
	Channel   domain.ChannelConfig
	Media     []domain.MediaRef
	Text      string
	ItemName  string
	Price     *domain.Price
	Messages  []domain.SourceMessage
	CreatedAt time.Time

	flushScheduled bool
	flushed        bool
	timer          Timer
}

// Content returns the merged ProcessedContent of the group.
func (g *Group) Content() domain.ProcessedContent {
	return domain.ProcessedContent{
		ItemName: g.ItemName,
		Price:    g.Price,
		Media:    append([]domain.MediaRef(nil), g.Media...),
		GroupID:  g.ID,
	}
}

// MessageIDs lists constituent message ids in arrival order.
func (g *Group) MessageIDs() []int64 {
	ids := make([]int64, 0, len(g.Messages))
	for _, m := range g.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// FlushFunc publishes a finalized group. It is called at most once per group.
type FlushFunc func(ctx context.Context, g *Group, trigger Trigger)

// Outcome reports what Add did with a fragment.
type Outcome int

const (
	Created Outcome = iota + 1
	Merged
	Late
)

// Options tune the aggregation windows.
type Options struct {
	Window     time.Duration
	StaleAfter time.Duration
	Clock      Clock
}

// Aggregator owns the live group map. Map mutation is serialized by mu;
// flushes run outside the lock.
type Aggregator struct {
	window     time.Duration
	staleAfter time.Duration
	clock      Clock
	flush      FlushFunc
	log        logger.Logger

	mu       sync.Mutex
	ctx      context.Context
	groups   map[string]*Group
	done     map[string]time.Time
	flushing int
	idle     chan struct{}
}

// New builds an aggregator that hands finalized groups to flush.
func New(opts Options, flush FlushFunc, log logger.Logger) *Aggregator {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &Aggregator{
		window:     opts.Window,
		staleAfter: opts.StaleAfter,
		clock:      opts.Clock,
		flush:      flush,
		log:        logger.Ensure(log),
		ctx:        context.Background(),
		groups:     make(map[string]*Group),
		done:       make(map[string]time.Time),
	}
}

// Add merges a fragment into its group, creating the group and its flush
// timer on first sight. Fragments of an already flushed group are dropped.
func (a *Aggregator) Add(msg domain.SourceMessage, content domain.ProcessedContent, cfg domain.ChannelConfig) Outcome {
	id := msg.GroupID
	text := msg.Text

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.done[id]; ok {
		a.log.WarnObj("late fragment for flushed group dropped", "group_fragment", map[string]any{
			"group_id":   id,
			"message_id": msg.ID,
			"channel_id": msg.ChannelID,
		})
		return Late
	}

	g, ok := a.groups[id]
	if ok && g.flushed {
		a.log.WarnObj("fragment arrived while group is publishing", "group_fragment", map[string]any{
			"group_id":   id,
			"message_id": msg.ID,
			"channel_id": msg.ChannelID,
		})
		return Late
	}

	if !ok {
		g = &Group{
			ID:        id,
			Channel:   cfg,
			CreatedAt: a.clock.Now(),
		}
		a.groups[id] = g
		g.timer = a.clock.AfterFunc(a.window, func() { a.fire(g) })
		g.flushScheduled = true
	}

	g.Media = append(g.Media, content.Media...)
	if len(text) > len(g.Text) {
		g.Text = text
		g.ItemName = content.ItemName
	} else if g.ItemName == "" && content.ItemName != "" {
		g.ItemName = content.ItemName
	}
	if g.Price == nil && content.Price != nil {
		g.Price = content.Price
	}
	g.Messages = append(g.Messages, msg)

	a.log.DebugObj("group fragment collected", "group_fragment", map[string]any{
		"group_id":    id,
		"message_id":  msg.ID,
		"fragments":   len(g.Messages),
		"media_count": len(g.Media),
	})

	if ok {
		return Merged
	}
	return Created
}

func (a *Aggregator) fire(g *Group) {
	a.mu.Lock()
	ok := a.claim(g)
	ctx := a.ctx
	a.mu.Unlock()

	if ok {
		// Detached so shutdown does not abort an album already being published.
		a.finish(context.WithoutCancel(ctx), g, TriggerTimer)
	}
}

// claim flips the flushed guard and counts the flush as in flight until
// remove. Callers hold mu.
func (a *Aggregator) claim(g *Group) bool {
	if g.flushed || a.groups[g.ID] != g {
		return false
	}
	g.flushed = true
	g.flushScheduled = false
	a.flushing++
	return true
}

func (a *Aggregator) finish(ctx context.Context, g *Group, trigger Trigger) {
	defer a.remove(g)

	if len(g.Media) == 0 && g.Text == "" && g.ItemName == "" {
		a.log.WarnObj("group has nothing to publish", "group_flush", map[string]any{
			"group_id":    g.ID,
			"message_ids": g.MessageIDs(),
			"trigger":     string(trigger),
		})
		return
	}

	a.log.InfoObj("flushing group", "group_flush", map[string]any{
		"group_id":    g.ID,
		"message_ids": g.MessageIDs(),
		"media_count": len(g.Media),
		"trigger":     string(trigger),
	})
	if a.flush != nil {
		a.flush(ctx, g, trigger)
	}
}

// remove drops the group after its publish attempt, whatever the result.
func (a *Aggregator) remove(g *Group) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.groups[g.ID] == g {
		delete(a.groups, g.ID)
	}
	a.done[g.ID] = a.clock.Now()

	a.flushing--
	if a.flushing == 0 && a.idle != nil {
		close(a.idle)
		a.idle = nil
	}
}

// Sweep flushes groups older than the stale ceiling and forgets old tombstones.
// It returns the number of groups it flushed.
func (a *Aggregator) Sweep(ctx context.Context) int {
	now := a.clock.Now()

	a.mu.Lock()
	var stale []*Group
	for _, g := range a.groups {
		if g.flushed || now.Sub(g.CreatedAt) < a.staleAfter {
			continue
		}
		if g.timer != nil {
			g.timer.Stop()
		}
		if a.claim(g) {
			stale = append(stale, g)
		}
	}
	for id, at := range a.done {
		if now.Sub(at) >= a.staleAfter {
			delete(a.done, id)
		}
	}
	a.mu.Unlock()

	for _, g := range stale {
		a.finish(context.WithoutCancel(ctx), g, TriggerStale)
	}
	return len(stale)
}

// Drain flushes every pending group immediately and then waits for flushes
// already running; used on shutdown since fragments are already ledgered and
// would otherwise be lost.
func (a *Aggregator) Drain(ctx context.Context) int {
	a.mu.Lock()
	var pending []*Group
	for _, g := range a.groups {
		if g.timer != nil {
			g.timer.Stop()
		}
		if a.claim(g) {
			pending = append(pending, g)
		}
	}
	a.mu.Unlock()

	for _, g := range pending {
		a.finish(ctx, g, TriggerShutdown)
	}
	if err := a.Wait(ctx); err != nil {
		a.log.WarnObj("in-flight group flushes did not finish", "group_flush", map[string]any{
			"error": err.Error(),
		})
	}
	return len(pending)
}

// Wait blocks until no group flush is in flight or ctx is done.
func (a *Aggregator) Wait(ctx context.Context) error {
	a.mu.Lock()
	if a.flushing == 0 {
		a.mu.Unlock()
		return nil
	}
	if a.idle == nil {
		a.idle = make(chan struct{})
	}
	idle := a.idle
	a.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run sweeps stale groups every interval until ctx is done. Timer flushes
// started while running use ctx.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Sweep(ctx); n > 0 {
				a.log.WarnObj("stale groups flushed", "group_sweep", map[string]any{"count": n})
			}
		}
	}
}

// Pending returns the number of live groups.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}
