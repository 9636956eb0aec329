package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/channel-relay/internal/aggregator"
	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/extract"
	"github.com/samvad-hq/channel-relay/internal/logger"
	"github.com/samvad-hq/channel-relay/internal/metrics"
	"github.com/samvad-hq/channel-relay/internal/publish"
	"github.com/samvad-hq/channel-relay/pkg/publishers"
)

// Intake outcomes reported to metrics.
const (
	outcomeIgnored   = "ignored"
	outcomeDuplicate = "duplicate"
	outcomeEmpty     = "empty"
	outcomeSingle    = "single"
	outcomeGrouped   = "grouped"
	outcomeLate      = "late"
)

// Deps are the collaborators of the intake service. Mirror and Metrics are optional.
type Deps struct {
	Channels  ChannelLookup
	Ledger    Ledger
	Extractor Extractor
	Publisher Publisher
	Mirror    Mirror
	Metrics   *metrics.Metrics
}

// Options configure destinations and album aggregation.
type Options struct {
	DestinationChatID  int64
	AttributionEnabled bool
	Aggregation        aggregator.Options
}

// Service admits inbound channel posts, coalesces albums and hands the
// result to the publisher.
type Service struct {
	channels  ChannelLookup
	ledger    Ledger
	extractor Extractor
	publisher Publisher
	mirror    Mirror
	metrics   *metrics.Metrics
	log       logger.Logger

	chatID      int64
	attribution bool
	agg         *aggregator.Aggregator

	mu       sync.Mutex
	inflight map[domain.MessageKey]struct{}
	wg       sync.WaitGroup
}

// NewService wires the intake service and its group aggregator.
func NewService(deps Deps, opts Options, log logger.Logger) *Service {
	s := &Service{
		channels:    deps.Channels,
		ledger:      deps.Ledger,
		extractor:   deps.Extractor,
		publisher:   deps.Publisher,
		mirror:      deps.Mirror,
		metrics:     deps.Metrics,
		log:         logger.Ensure(log),
		chatID:      opts.DestinationChatID,
		attribution: opts.AttributionEnabled,
		inflight:    make(map[domain.MessageKey]struct{}),
	}
	s.agg = aggregator.New(opts.Aggregation, s.flushGroup, s.log)
	return s
}

// Aggregator exposes the group aggregator for the sweep loop and shutdown drain.
func (s *Service) Aggregator() *aggregator.Aggregator { return s.agg }

// Pending reports live album groups.
func (s *Service) Pending() int {
	if s == nil || s.agg == nil {
		return 0
	}
	return s.agg.Pending()
}

// Handle processes one inbound post. Failures are logged; nothing here
// aborts the intake loop.
func (s *Service) Handle(ctx context.Context, msg domain.SourceMessage) {
	cfg, ok := s.channels.Lookup(msg.ChannelID)
	if !ok || !cfg.IsActive() {
		s.log.DebugObj("message from unmonitored channel ignored", "relay_intake", map[string]any{
			"channel_id": msg.ChannelID,
			"message_id": msg.ID,
		})
		s.metrics.Received(outcomeIgnored)
		return
	}

	key := msg.Key()
	if !s.acquire(key) {
		s.metrics.Received(outcomeDuplicate)
		return
	}

	processed, err := s.ledger.HasProcessed(key)
	if err != nil {
		s.log.WarnObj("ledger lookup failed; treating message as new", "ledger_error", map[string]any{
			"channel_id": msg.ChannelID,
			"message_id": msg.ID,
			"error":      err.Error(),
		})
	} else if processed {
		s.release(key)
		s.log.DebugObj("message already processed", "relay_intake", map[string]any{
			"channel_id": msg.ChannelID,
			"message_id": msg.ID,
		})
		s.metrics.Received(outcomeDuplicate)
		return
	}

	content := s.extractor.Process(msg, cfg)

	if msg.GroupID != "" {
		// Fragments are committed on arrival, before the album flushes.
		s.commit(key)
		s.release(key)
		if s.agg.Add(msg, content, cfg) == aggregator.Late {
			s.metrics.Received(outcomeLate)
			return
		}
		s.metrics.Received(outcomeGrouped)
		return
	}

	if strings.TrimSpace(msg.Text) == "" && len(content.Media) == 0 {
		s.commit(key)
		s.release(key)
		s.log.DebugObj("message has nothing to publish", "relay_intake", map[string]any{
			"channel_id": msg.ChannelID,
			"message_id": msg.ID,
			"media":      len(msg.Media),
		})
		s.metrics.Received(outcomeEmpty)
		return
	}

	s.metrics.Received(outcomeSingle)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(key)
		s.publishSingle(context.WithoutCancel(ctx), msg, cfg, content)
	}()
}

func (s *Service) publishSingle(ctx context.Context, msg domain.SourceMessage, cfg domain.ChannelConfig, content domain.ProcessedContent) {
	started := time.Now()
	res, err := s.publisher.PublishSingle(ctx, content, s.destination(cfg))
	if err != nil {
		s.metrics.Published(string(res.Path), "error", res.Dropped, started)
		s.log.ErrorObj("message publish failed", "publish_attempt", map[string]any{
			"channel_id": msg.ChannelID,
			"message_id": msg.ID,
			"error":      err.Error(),
		})
	} else {
		s.metrics.Published(string(res.Path), "ok", res.Dropped, started)
		s.log.InfoObj("message reposted", "publish_attempt", map[string]any{
			"channel_id":     msg.ChannelID,
			"message_id":     msg.ID,
			"path":           string(res.Path),
			"delivered_id":   res.FirstMessageID(),
			"media_dropped":  res.Dropped,
			"item_name":      content.ItemName,
			"price_included": content.Price != nil,
		})
	}

	// Committed whatever the outcome; failures carry ids for a manual re-run.
	s.commit(msg.Key())

	if err == nil {
		s.fanout(ctx, cfg, []int64{msg.ID}, content, res)
	}
}

func (s *Service) flushGroup(ctx context.Context, g *aggregator.Group, trigger aggregator.Trigger) {
	s.metrics.Flushed(string(trigger))

	started := time.Now()
	content := g.Content()
	res, err := s.publisher.PublishGroup(ctx, content, s.destination(g.Channel))
	switch {
	case errors.Is(err, publish.ErrNothingToPublish):
		s.metrics.Published(string(res.Path), outcomeEmpty, res.Dropped, started)
		return
	case err != nil:
		s.metrics.Published(string(res.Path), "error", res.Dropped, started)
		s.log.ErrorObj("group publish failed", "publish_attempt", map[string]any{
			"channel_id":  g.Channel.ChannelID,
			"group_id":    g.ID,
			"message_ids": g.MessageIDs(),
			"error":       err.Error(),
		})
		return
	}

	s.metrics.Published(string(res.Path), "ok", res.Dropped, started)
	s.log.InfoObj("group reposted", "publish_attempt", map[string]any{
		"channel_id":    g.Channel.ChannelID,
		"group_id":      g.ID,
		"message_ids":   g.MessageIDs(),
		"path":          string(res.Path),
		"delivered":     res.Delivered,
		"media_dropped": res.Dropped,
	})
	s.fanout(ctx, g.Channel, g.MessageIDs(), content, res)
}

func (s *Service) fanout(ctx context.Context, cfg domain.ChannelConfig, ids []int64, content domain.ProcessedContent, res publish.Result) {
	if s.mirror == nil {
		return
	}
	evt := publishers.NewEvent(cfg, ids, content)
	evt.MediaCount = res.Delivered
	evt.DeliveryPath = string(res.Path)
	evt.DeliveredMessageID = res.FirstMessageID()

	if _, err := s.mirror.Publish(ctx, evt); err != nil {
		s.log.WarnObj("mirror publish failed", "mirror_error", map[string]any{
			"event_id":   evt.ID,
			"channel_id": cfg.ChannelID,
			"error":      err.Error(),
		})
	}
}

// commit records key in the ledger. A failed write is logged; the message
// has already been handed on.
func (s *Service) commit(key domain.MessageKey) {
	if err := s.ledger.MarkProcessed(key); err != nil {
		s.log.ErrorObj("ledger write failed", "ledger_error", map[string]any{
			"channel_id": key.ChannelID,
			"message_id": key.MessageID,
			"error":      err.Error(),
		})
	}
}

func (s *Service) destination(cfg domain.ChannelConfig) domain.Destination {
	dest := domain.Destination{ChatID: s.chatID, TopicID: cfg.DestinationTopic}
	if s.attribution {
		dest.Attribution = Attribution(cfg)
	}
	return dest
}

// Attribution renders the source line appended to captions.
func Attribution(cfg domain.ChannelConfig) string {
	name := extract.FormatText(cfg.ChannelName)
	if name == "" {
		name = cfg.ChannelID
	}
	return "📢 Source: " + name
}

// acquire guards against the same message being handled twice concurrently.
func (s *Service) acquire(key domain.MessageKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) release(key domain.MessageKey) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// Wait blocks until in-flight single publishes finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
