package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/channel-relay/internal/aggregator"
	"github.com/samvad-hq/channel-relay/internal/config"
	"github.com/samvad-hq/channel-relay/internal/extract"
	"github.com/samvad-hq/channel-relay/internal/logger"
	"github.com/samvad-hq/channel-relay/internal/metrics"
	"github.com/samvad-hq/channel-relay/internal/publish"
	"github.com/samvad-hq/channel-relay/internal/registry"
	"github.com/samvad-hq/channel-relay/internal/relay"
	"github.com/samvad-hq/channel-relay/internal/storage"
	"github.com/samvad-hq/channel-relay/pkg/httpclient"
	"github.com/samvad-hq/channel-relay/pkg/publishers"
	"github.com/samvad-hq/channel-relay/pkg/telegram"
)

const shutdownTimeout = 30 * time.Second

// source feeds inbound channel posts to a handler until ctx is done.
type source interface {
	Run(ctx context.Context, handle telegram.Handler) error
}

// Relay represents the channel relay runtime. It owns the update source,
// the intake service, the background loops and every resource that needs
// closing on shutdown.
type Relay struct {
	cfg      *config.Config
	channels *registry.Registry
	ledger   storage.Ledger
	fanout   *publishers.Fanout
	metrics  *metrics.Metrics
	service  *relay.Service
	source   source
	log      logger.Logger
}

// NewRelay builds a relay runtime from config.
func NewRelay(ctx context.Context, cfg *config.Config, log logger.Logger) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	channels, err := registry.Load(cfg.ChannelsFile, log)
	if err != nil {
		return nil, fmt.Errorf("load channels registry: %w", err)
	}
	active := channels.All(true)
	channelIDs := make([]string, 0, len(active))
	for _, c := range active {
		channelIDs = append(channelIDs, c.ChannelID)
	}
	log.InfoObj("channels registry loaded", "channels_meta", map[string]any{
		"active": len(channelIDs),
		"ids":    channelIDs,
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	ledger, err := storage.NewLedger(cfg.StorageType, ledgerPath(cfg), storage.Options{
		Retention:       cfg.LedgerRetention,
		CleanupInterval: cfg.LedgerCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	log.InfoObj("ledger initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     ledgerPath(cfg),
		"retention_seconds":        int(cfg.LedgerRetention.Seconds()),
		"cleanup_interval_seconds": int(cfg.LedgerCleanupInterval.Seconds()),
	})

	bot, err := telegram.NewBot(cfg.TelegramBotToken)
	if err != nil {
		_ = fanout.Close()
		_ = ledger.Close()
		return nil, err
	}

	pipeline := publish.New(
		telegram.NewSurface(bot, cfg.SendRatePerMinute),
		telegram.NewDownloader(bot, httpclient.NewRestyClient(cfg.DownloadTimeout), cfg.MediaMaxBytes),
		publish.Options{
			Attempts:       cfg.PublishAttempts,
			Backoff:        cfg.PublishBackoff,
			DefaultCaption: cfg.DefaultCaption,
		},
		log,
	)

	r := &Relay{
		cfg:      cfg,
		channels: channels,
		ledger:   ledger,
		fanout:   fanout,
		source:   telegram.NewSource(bot, log),
		log:      log,
	}
	r.metrics = metrics.New(r.pending)
	r.service = relay.NewService(relay.Deps{
		Channels:  channels,
		Ledger:    ledger,
		Extractor: extract.New(cfg.MarkupPercent, log),
		Publisher: pipeline,
		Mirror:    fanout,
		Metrics:   r.metrics,
	}, relay.Options{
		DestinationChatID:  cfg.DestinationChatID,
		AttributionEnabled: cfg.AttributionEnabled,
		Aggregation: aggregator.Options{
			Window:     cfg.FlushWindow,
			StaleAfter: cfg.StaleGroupAfter,
		},
	}, log)

	return r, nil
}

// buildFanout loads mirror sinks. An empty publishers file disables mirroring.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(cfg.PublishersFile) == "" {
		log.InfoObj("mirror publishers disabled", "publishers_meta", map[string]any{"count": 0})
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubClients), nil
}

func ledgerPath(cfg *config.Config) string {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageType)) {
	case "bbolt":
		return cfg.BBoltPath
	case "sqlite":
		return cfg.SQLitePath
	default:
		return ""
	}
}

func (r *Relay) pending() int {
	if r.service == nil {
		return 0
	}
	return r.service.Pending()
}

// Run consumes channel posts until ctx is cancelled, then drains pending
// albums and waits for in-flight deliveries before closing resources.
func (r *Relay) Run(ctx context.Context) error {
	if r == nil || r.service == nil {
		return fmt.Errorf("relay is not initialized")
	}
	defer r.close()

	r.log.InfoObj("relay starting", "relay_state", map[string]any{
		"destination_chat_id": r.cfg.DestinationChatID,
		"flush_window":        r.cfg.FlushWindow.String(),
		"stale_after":         r.cfg.StaleGroupAfter.String(),
		"publishers_count":    r.fanout.Size(),
	})

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	r.background(loopCtx, &wg)

	err := r.source.Run(loopCtx, r.service.Handle)
	if err != nil {
		r.log.ErrorObj("update source stopped", "error", err)
	}

	cancel()
	r.shutdown(&wg)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// background starts the sweep, retention, reload and metrics loops.
func (r *Relay) background(ctx context.Context, wg *sync.WaitGroup) {
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { r.service.Aggregator().Run(ctx, r.cfg.SweepInterval) })
	run(func() { r.retentionLoop(ctx) })
	run(func() {
		if err := r.channels.Watch(ctx); err != nil {
			r.log.WarnObj("channels hot reload unavailable", "error", err)
		}
	})
	if r.cfg.MetricsAddr != "" {
		run(func() {
			if err := r.metrics.Serve(ctx, r.cfg.MetricsAddr); err != nil {
				r.log.ErrorObj("metrics listener failed", "error", err)
			}
		})
	}
}

func (r *Relay) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.LedgerCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ledger.Prune(); err != nil {
				r.log.ErrorObj("ledger retention sweep failed", "ledger_error", err)
			}
		}
	}
}

// shutdown flushes pending albums since their fragments are already ledgered.
func (r *Relay) shutdown(wg *sync.WaitGroup) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if n := r.service.Aggregator().Drain(ctx); n > 0 {
		r.log.InfoObj("pending groups flushed on shutdown", "relay_state", map[string]any{"count": n})
	}
	if err := r.service.Wait(ctx); err != nil {
		r.log.WarnObj("in-flight deliveries did not finish", "error", err)
	}
	wg.Wait()
	r.log.InfoObj("relay stopped", "relay_state", nil)
}

// close releases the ledger and sink connections, logging any errors encountered.
func (r *Relay) close() {
	if err := r.ledger.Close(); err != nil {
		r.log.ErrorObj("ledger close failed", "error", err)
	}
	if err := r.fanout.Close(); err != nil {
		r.log.ErrorObj("publishers close failed", "error", err)
	}
}
