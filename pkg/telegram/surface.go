package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/publish"
	"golang.org/x/time/rate"
)

// generalTopicID must be omitted from sends; Telegram rejects it as a thread.
const generalTopicID = 1

// sender is the subset of *telego.Bot used for delivery.
type sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error)
	SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error)
	SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error)
}

// Surface delivers to a Telegram chat, optionally inside a forum topic.
// All sends share one rate limiter.
type Surface struct {
	bot     sender
	limiter *rate.Limiter
}

// NewSurface builds a surface allowing perMinute sends per minute.
func NewSurface(bot sender, perMinute int) *Surface {
	if perMinute <= 0 {
		perMinute = 20
	}
	every := rate.Every(time.Minute / time.Duration(perMinute))
	return &Surface{bot: bot, limiter: rate.NewLimiter(every, 1)}
}

var _ publish.Surface = (*Surface)(nil)

func (s *Surface) wait(ctx context.Context, op string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return publish.Transient(op, err)
	}
	return nil
}

func threadID(dest domain.Destination) int {
	if dest.TopicID == generalTopicID {
		return 0
	}
	return dest.TopicID
}

func (s *Surface) SendText(ctx context.Context, dest domain.Destination, caption string) (int, error) {
	if err := s.wait(ctx, "send_text"); err != nil {
		return 0, err
	}
	params := tu.Message(tu.ID(dest.ChatID), caption)
	params.MessageThreadID = threadID(dest)

	msg, err := s.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, classify("send_text", err)
	}
	return msg.MessageID, nil
}

func (s *Surface) SendMedia(ctx context.Context, dest domain.Destination, item publish.MediaItem, caption string) (int, error) {
	return s.sendOne(ctx, "send_media", dest, item, caption, nil)
}

func (s *Surface) SendMediaAsReply(ctx context.Context, dest domain.Destination, item publish.MediaItem, replyTo int) (int, error) {
	reply := &telego.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	return s.sendOne(ctx, "send_media_reply", dest, item, "", reply)
}

func (s *Surface) sendOne(ctx context.Context, op string, dest domain.Destination, item publish.MediaItem, caption string, reply *telego.ReplyParameters) (int, error) {
	if err := s.wait(ctx, op); err != nil {
		return 0, err
	}
	chat := tu.ID(dest.ChatID)
	file := inputFile(item)

	var (
		msg *telego.Message
		err error
	)
	switch item.Kind {
	case domain.MediaPhoto:
		params := tu.Photo(chat, file)
		params.Caption = caption
		params.MessageThreadID = threadID(dest)
		params.ReplyParameters = reply
		msg, err = s.bot.SendPhoto(ctx, params)
	case domain.MediaVideo:
		params := tu.Video(chat, file)
		params.Caption = caption
		params.MessageThreadID = threadID(dest)
		params.ReplyParameters = reply
		msg, err = s.bot.SendVideo(ctx, params)
	case domain.MediaDocument:
		params := tu.Document(chat, file)
		params.Caption = caption
		params.MessageThreadID = threadID(dest)
		params.ReplyParameters = reply
		msg, err = s.bot.SendDocument(ctx, params)
	default:
		return 0, publish.Structural(op, fmt.Errorf("unsupported media kind %v", item.Kind))
	}
	if err != nil {
		return 0, classify(op, err)
	}
	return msg.MessageID, nil
}

// SendMediaBatch sends an album. Only the first item's caption is used.
func (s *Surface) SendMediaBatch(ctx context.Context, dest domain.Destination, items []publish.MediaItem) ([]int, error) {
	const op = "send_media_batch"
	if err := s.wait(ctx, op); err != nil {
		return nil, err
	}

	media := make([]telego.InputMedia, 0, len(items))
	for i, item := range items {
		caption := ""
		if i == 0 {
			caption = item.Caption
		}
		file := inputFile(item)
		switch item.Kind {
		case domain.MediaPhoto:
			m := tu.MediaPhoto(file)
			m.Caption = caption
			media = append(media, m)
		case domain.MediaVideo:
			m := tu.MediaVideo(file)
			m.Caption = caption
			media = append(media, m)
		case domain.MediaDocument:
			m := tu.MediaDocument(file)
			m.Caption = caption
			media = append(media, m)
		default:
			return nil, publish.Structural(op, fmt.Errorf("unsupported media kind %v", item.Kind))
		}
	}

	params := tu.MediaGroup(tu.ID(dest.ChatID), media...)
	params.MessageThreadID = threadID(dest)

	msgs, err := s.bot.SendMediaGroup(ctx, params)
	if err != nil {
		return nil, classify(op, err)
	}
	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.MessageID)
	}
	return ids, nil
}

func inputFile(item publish.MediaItem) telego.InputFile {
	name := item.FileName
	if name == "" {
		switch item.Kind {
		case domain.MediaVideo:
			name = "video.mp4"
		case domain.MediaDocument:
			name = "document.bin"
		default:
			name = "photo.jpg"
		}
	}
	return tu.File(tu.NameReader(bytes.NewReader(item.Data), name))
}

// classify maps Bot API failures onto the delivery taxonomy: a 400 means the
// request shape was rejected, anything else may succeed on retry.
func classify(op string, err error) error {
	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) && apiErr.ErrorCode == http.StatusBadRequest {
		return publish.Structural(op, err)
	}
	return publish.Transient(op, err)
}
