package publishers

import (
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/channel-relay/internal/domain"
)

// Event describes one successful repost, mirrored to downstream sinks.
type Event struct {
	ID                 string        `json:"id"`
	SourceChannelID    string        `json:"source_channel_id"`
	SourceChannelName  string        `json:"source_channel_name,omitempty"`
	MessageIDs         []int64       `json:"message_ids"`
	GroupID            string        `json:"group_id,omitempty"`
	ItemName           string        `json:"item_name,omitempty"`
	Price              *domain.Price `json:"price,omitempty"`
	MediaCount         int           `json:"media_count"`
	DeliveryPath       string        `json:"delivery_path"`
	DeliveredMessageID int           `json:"delivered_message_id"`
	PublishedAt        time.Time     `json:"published_at"`
}

// NewEvent builds an Event with a fresh id and timestamp.
func NewEvent(channel domain.ChannelConfig, messageIDs []int64, content domain.ProcessedContent) Event {
	return Event{
		ID:                uuid.NewString(),
		SourceChannelID:   channel.ChannelID,
		SourceChannelName: channel.ChannelName,
		MessageIDs:        messageIDs,
		GroupID:           content.GroupID,
		ItemName:          content.ItemName,
		Price:             content.Price,
		PublishedAt:       time.Now().UTC(),
	}
}
