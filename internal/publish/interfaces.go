package publish

import (
	"context"

	"github.com/samvad-hq/channel-relay/internal/domain"
)

// MediaItem is a retrieved media reference ready to send.
type MediaItem struct {
	Kind     domain.MediaKind
	FileName string
	Data     []byte
	Caption  string
}

// Surface delivers to the destination system. Implementations classify
// failures with Structural or Transient.
type Surface interface {
	SendText(ctx context.Context, dest domain.Destination, caption string) (int, error)
	SendMedia(ctx context.Context, dest domain.Destination, item MediaItem, caption string) (int, error)
	// SendMediaBatch sends items as one album; only the first item's caption is shown.
	SendMediaBatch(ctx context.Context, dest domain.Destination, items []MediaItem) ([]int, error)
	SendMediaAsReply(ctx context.Context, dest domain.Destination, item MediaItem, replyTo int) (int, error)
}

// Downloader retrieves media bytes.
type Downloader interface {
	Download(ctx context.Context, ref domain.MediaRef) ([]byte, error)
}
