package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/logger"
)

// Path names the delivery route a publish took.
type Path string

const (
	PathText       Path = "text"
	PathSingle     Path = "single"
	PathBatch      Path = "batch"
	PathSequential Path = "sequential"
)

// Result describes a successful publish.
type Result struct {
	Path       Path
	MessageIDs []int
	Delivered  int
	Dropped    int
}

// FirstMessageID is the delivery id of the captioned message, or 0.
func (r Result) FirstMessageID() int {
	if len(r.MessageIDs) == 0 {
		return 0
	}
	return r.MessageIDs[0]
}

// Options configures retries and captions.
type Options struct {
	Attempts       int
	Backoff        time.Duration
	DefaultCaption string
	// Sleep waits between attempts; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Pipeline delivers processed content with bounded retries and an album
// fallback to sequential replies.
type Pipeline struct {
	surface    Surface
	downloader Downloader
	attempts   int
	backoff    time.Duration
	caption    string
	sleep      func(ctx context.Context, d time.Duration) error
	log        logger.Logger
}

// New builds a Pipeline.
func New(surface Surface, downloader Downloader, opts Options, log logger.Logger) *Pipeline {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.DefaultCaption == "" {
		opts.DefaultCaption = DefaultCaption
	}
	return &Pipeline{
		surface:    surface,
		downloader: downloader,
		attempts:   opts.Attempts,
		backoff:    opts.Backoff,
		caption:    opts.DefaultCaption,
		sleep:      opts.Sleep,
		log:        logger.Ensure(log),
	}
}

// Caption renders the caption for content sent to dest.
func (p *Pipeline) Caption(content domain.ProcessedContent, dest domain.Destination) string {
	return BuildCaption(content, dest.Attribution, p.caption)
}

// PublishSingle sends content with at most one media item. A media item that
// cannot be retrieved degrades the post to text only.
func (p *Pipeline) PublishSingle(ctx context.Context, content domain.ProcessedContent, dest domain.Destination) (Result, error) {
	items, dropped := p.retrieve(ctx, content)
	if len(items) > 1 {
		items = items[:1]
	}
	res, err := p.sendSingle(ctx, p.Caption(content, dest), items, dest, content.GroupID)
	res.Dropped = dropped
	return res, err
}

// PublishGroup sends an aggregated album: one batched call, falling back to
// sequential replies when the batch shape is rejected.
func (p *Pipeline) PublishGroup(ctx context.Context, content domain.ProcessedContent, dest domain.Destination) (Result, error) {
	items, dropped := p.retrieve(ctx, content)
	caption := p.Caption(content, dest)

	if len(items) == 0 && content.ItemName == "" && content.Price == nil {
		p.log.WarnObj("group dropped: no media survived and no text", "publish_attempt", map[string]any{
			"group_id": content.GroupID,
			"dropped":  dropped,
		})
		return Result{Dropped: dropped}, ErrNothingToPublish
	}
	if len(items) <= 1 {
		res, err := p.sendSingle(ctx, caption, items, dest, content.GroupID)
		res.Dropped = dropped
		return res, err
	}

	items[0].Caption = caption
	var ids []int
	err := p.withRetry(ctx, "send_media_batch", content.GroupID, func(ctx context.Context) error {
		var sendErr error
		ids, sendErr = p.surface.SendMediaBatch(ctx, dest, items)
		return sendErr
	})
	if err == nil {
		return Result{Path: PathBatch, MessageIDs: ids, Delivered: len(items), Dropped: dropped}, nil
	}
	if !IsStructural(err) {
		return Result{Dropped: dropped}, err
	}

	p.log.WarnObj("batch rejected, falling back to sequential delivery", "publish_attempt", map[string]any{
		"group_id": content.GroupID,
		"items":    len(items),
		"error":    err.Error(),
	})
	res, err := p.sendSequential(ctx, caption, items, dest, content.GroupID)
	res.Dropped = dropped
	return res, err
}

func (p *Pipeline) sendSingle(ctx context.Context, caption string, items []MediaItem, dest domain.Destination, groupID string) (Result, error) {
	var id int
	if len(items) == 0 {
		err := p.withRetry(ctx, "send_text", groupID, func(ctx context.Context) error {
			var sendErr error
			id, sendErr = p.surface.SendText(ctx, dest, caption)
			return sendErr
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Path: PathText, MessageIDs: []int{id}}, nil
	}

	err := p.withRetry(ctx, "send_media", groupID, func(ctx context.Context) error {
		var sendErr error
		id, sendErr = p.surface.SendMedia(ctx, dest, items[0], caption)
		return sendErr
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Path: PathSingle, MessageIDs: []int{id}, Delivered: 1}, nil
}

// sendSequential sends the first deliverable item with the caption, then the
// rest as replies to it. Sub-send failures are logged and skipped.
func (p *Pipeline) sendSequential(ctx context.Context, caption string, items []MediaItem, dest domain.Destination, groupID string) (Result, error) {
	res := Result{Path: PathSequential}
	head := 0
	var lastErr error

	for i, item := range items {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		var id int
		var err error
		if head == 0 {
			err = p.withRetry(ctx, "send_media", groupID, func(ctx context.Context) error {
				var sendErr error
				id, sendErr = p.surface.SendMedia(ctx, dest, item, caption)
				return sendErr
			})
		} else {
			err = p.withRetry(ctx, "send_media_reply", groupID, func(ctx context.Context) error {
				var sendErr error
				id, sendErr = p.surface.SendMediaAsReply(ctx, dest, item, head)
				return sendErr
			})
		}
		if err != nil {
			lastErr = err
			p.log.WarnObj("sequential item skipped", "publish_attempt", map[string]any{
				"group_id": groupID,
				"index":    i,
				"reply_to": head,
				"error":    err.Error(),
			})
			continue
		}
		if head == 0 {
			head = id
		}
		res.MessageIDs = append(res.MessageIDs, id)
		res.Delivered++
	}

	if res.Delivered == 0 {
		return res, fmt.Errorf("sequential delivery failed for all %d items: %w", len(items), lastErr)
	}
	return res, nil
}

// retrieve downloads every media reference, dropping the ones that fail.
func (p *Pipeline) retrieve(ctx context.Context, content domain.ProcessedContent) ([]MediaItem, int) {
	items := make([]MediaItem, 0, len(content.Media))
	dropped := 0
	for _, ref := range content.Media {
		data, err := p.downloader.Download(ctx, ref)
		if err == nil && len(data) == 0 {
			err = fmt.Errorf("empty media body")
		}
		if err != nil {
			dropped++
			p.log.WarnObj("media retrieval failed, item dropped", "media_retrieval", map[string]any{
				"group_id": content.GroupID,
				"file_id":  ref.FileID,
				"kind":     ref.Kind.String(),
				"error":    err.Error(),
			})
			continue
		}
		items = append(items, MediaItem{Kind: ref.Kind, FileName: ref.FileName, Data: data})
	}
	return items, dropped
}

// withRetry runs fn up to the attempt budget with linearly growing pauses.
// Structural failures are returned immediately.
func (p *Pipeline) withRetry(ctx context.Context, op, groupID string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if IsStructural(err) {
			return err
		}
		p.log.WarnObj("delivery attempt failed", "publish_attempt", map[string]any{
			"op":       op,
			"group_id": groupID,
			"attempt":  attempt,
			"of":       p.attempts,
			"error":    err.Error(),
		})
		if attempt < p.attempts {
			if sleepErr := p.sleep(ctx, time.Duration(attempt)*p.backoff); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.attempts, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
