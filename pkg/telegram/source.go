package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/logger"
)

// Handler consumes inbound source messages.
type Handler func(ctx context.Context, msg domain.SourceMessage)

// Source long-polls channel posts from every channel the bot is admin of.
type Source struct {
	bot *telego.Bot
	log logger.Logger
}

// NewSource wraps bot as a channel post source.
func NewSource(bot *telego.Bot, log logger.Logger) *Source {
	return &Source{bot: bot, log: logger.Ensure(log)}
}

// Run delivers channel posts to handle until ctx is done or the update
// stream closes. Posts are handed over one at a time in arrival order.
func (s *Source) Run(ctx context.Context, handle Handler) error {
	updates, err := s.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"channel_post"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	s.log.InfoObj("telegram source polling", "telegram_source", map[string]any{"username": s.bot.Username()})

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				s.log.InfoObj("telegram updates channel closed", "telegram_source", nil)
				return nil
			}
			if update.ChannelPost == nil {
				continue
			}
			handle(ctx, ToSourceMessage(update.ChannelPost))
		}
	}
}

// ToSourceMessage converts a Bot API post. Photos keep only their largest size.
func ToSourceMessage(m *telego.Message) domain.SourceMessage {
	msg := domain.SourceMessage{
		ID:         int64(m.MessageID),
		ChannelID:  strconv.FormatInt(m.Chat.ID, 10),
		Text:       m.Text,
		GroupID:    m.MediaGroupID,
		ReceivedAt: time.Unix(m.Date, 0),
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}

	if n := len(m.Photo); n > 0 {
		p := m.Photo[n-1]
		msg.Media = append(msg.Media, domain.MediaRef{
			Kind:   domain.MediaPhoto,
			FileID: p.FileID,
			Size:   int64(p.FileSize),
		})
	}
	if v := m.Video; v != nil {
		msg.Media = append(msg.Media, domain.MediaRef{
			Kind:     domain.MediaVideo,
			FileID:   v.FileID,
			FileName: v.FileName,
			Size:     v.FileSize,
		})
	}
	if d := m.Document; d != nil {
		msg.Media = append(msg.Media, domain.MediaRef{
			Kind:     domain.MediaDocument,
			FileID:   d.FileID,
			FileName: d.FileName,
			Size:     d.FileSize,
		})
	}
	return msg
}
