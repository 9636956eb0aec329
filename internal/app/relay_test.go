package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/channel-relay/internal/aggregator"
	"github.com/samvad-hq/channel-relay/internal/config"
	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/extract"
	"github.com/samvad-hq/channel-relay/internal/logger"
	"github.com/samvad-hq/channel-relay/internal/metrics"
	"github.com/samvad-hq/channel-relay/internal/publish"
	"github.com/samvad-hq/channel-relay/internal/registry"
	"github.com/samvad-hq/channel-relay/internal/relay"
	"github.com/samvad-hq/channel-relay/pkg/publishers"
	"github.com/samvad-hq/channel-relay/pkg/telegram"
)

type scriptedSource struct {
	msgs []domain.SourceMessage
}

func (s scriptedSource) Run(ctx context.Context, handle telegram.Handler) error {
	for _, m := range s.msgs {
		handle(ctx, m)
	}
	return nil
}

type memLedger struct {
	mu     sync.Mutex
	keys   map[domain.MessageKey]bool
	closed bool
}

func (l *memLedger) HasProcessed(k domain.MessageKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keys[k], nil
}

func (l *memLedger) MarkProcessed(k domain.MessageKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[k] = true
	return nil
}

func (l *memLedger) Prune() error { return nil }

func (l *memLedger) Close() error {
	l.closed = true
	return nil
}

type countingPublisher struct {
	mu     sync.Mutex
	groups []domain.ProcessedContent
	single []domain.ProcessedContent
}

func (p *countingPublisher) PublishSingle(_ context.Context, c domain.ProcessedContent, _ domain.Destination) (publish.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.single = append(p.single, c)
	return publish.Result{Path: publish.PathText, MessageIDs: []int{1}}, nil
}

func (p *countingPublisher) PublishGroup(_ context.Context, c domain.ProcessedContent, _ domain.Destination) (publish.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups = append(p.groups, c)
	return publish.Result{Path: publish.PathBatch, MessageIDs: []int{2, 3}, Delivered: len(c.Media)}, nil
}

func TestRelayRunDrainsPendingGroupsOnShutdown(t *testing.T) {
	cfg := &config.Config{
		DestinationChatID:     -100999,
		FlushWindow:           time.Hour,
		StaleGroupAfter:       2 * time.Hour,
		SweepInterval:         time.Minute,
		LedgerCleanupInterval: time.Hour,
	}

	channels, err := registry.Load(filepath.Join(t.TempDir(), "channels.yaml"), nil)
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	if err := channels.Upsert(domain.ChannelConfig{ChannelID: "-1001"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ledger := &memLedger{keys: map[domain.MessageKey]bool{}}
	pub := &countingPublisher{}
	fanout := publishers.NewFanout(nil)
	m := metrics.New(nil)

	r := &Relay{
		cfg:      cfg,
		channels: channels,
		ledger:   ledger,
		fanout:   fanout,
		metrics:  m,
		log:      logger.NopLogger{},
		source: scriptedSource{msgs: []domain.SourceMessage{
			{ID: 1, ChannelID: "-1001", GroupID: "g", Text: "Article: Cap", Media: []domain.MediaRef{{Kind: domain.MediaPhoto, FileID: "a"}}},
			{ID: 2, ChannelID: "-1001", GroupID: "g", Media: []domain.MediaRef{{Kind: domain.MediaPhoto, FileID: "b"}}},
			{ID: 3, ChannelID: "-1001", Text: "Article: Hat"},
		}},
	}
	r.service = relay.NewService(relay.Deps{
		Channels:  channels,
		Ledger:    ledger,
		Extractor: extract.New(0, nil),
		Publisher: pub,
		Mirror:    fanout,
		Metrics:   m,
	}, relay.Options{
		DestinationChatID: cfg.DestinationChatID,
		Aggregation:       aggregator.Options{Window: cfg.FlushWindow, StaleAfter: cfg.StaleGroupAfter},
	}, nil)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(pub.groups) != 1 || len(pub.groups[0].Media) != 2 {
		t.Fatalf("expected drained album with 2 media, got %#v", pub.groups)
	}
	if len(pub.single) != 1 || pub.single[0].ItemName != "Hat" {
		t.Fatalf("expected single publish for Hat, got %#v", pub.single)
	}
	if len(ledger.keys) != 3 {
		t.Fatalf("ledger keys = %d want 3", len(ledger.keys))
	}
	if !ledger.closed {
		t.Fatalf("ledger not closed after Run")
	}
	if r.service.Pending() != 0 {
		t.Fatalf("groups left pending after shutdown")
	}
}

func TestLedgerPathFollowsStorageType(t *testing.T) {
	cfg := &config.Config{StorageType: "SQLite", BBoltPath: "a.db", SQLitePath: "b.sqlite"}
	if got := ledgerPath(cfg); got != "b.sqlite" {
		t.Fatalf("ledgerPath(sqlite) = %q", got)
	}
	cfg.StorageType = "bbolt"
	if got := ledgerPath(cfg); got != "a.db" {
		t.Fatalf("ledgerPath(bbolt) = %q", got)
	}
	cfg.StorageType = "none"
	if got := ledgerPath(cfg); got != "" {
		t.Fatalf("ledgerPath(none) = %q", got)
	}
}

func TestBuildFanoutDisabledWithoutFile(t *testing.T) {
	f, err := buildFanout(context.Background(), &config.Config{}, logger.NopLogger{})
	if err != nil {
		t.Fatalf("buildFanout: %v", err)
	}
	if f.Size() != 0 {
		t.Fatalf("expected empty fanout, got %d", f.Size())
	}
}
