package relay

import (
	"context"

	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/publish"
	"github.com/samvad-hq/channel-relay/pkg/publishers"
)

// ChannelLookup resolves the monitoring configuration of a source channel.
type ChannelLookup interface {
	Lookup(channelID string) (domain.ChannelConfig, bool)
}

// Ledger records admitted messages.
type Ledger interface {
	HasProcessed(key domain.MessageKey) (bool, error)
	MarkProcessed(key domain.MessageKey) error
}

// Extractor derives publishable content from a source message.
type Extractor interface {
	Process(msg domain.SourceMessage, cfg domain.ChannelConfig) domain.ProcessedContent
}

// Publisher delivers content to the destination chat.
type Publisher interface {
	PublishSingle(ctx context.Context, content domain.ProcessedContent, dest domain.Destination) (publish.Result, error)
	PublishGroup(ctx context.Context, content domain.ProcessedContent, dest domain.Destination) (publish.Result, error)
}

// Mirror fans successful reposts out to downstream sinks.
type Mirror interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}
