package domain

import (
	"strconv"
	"strings"
	"time"
)

// Domain contains core models shared by the relay pipeline.

// MediaKind is the closed set of media shapes the relay forwards.
type MediaKind int

const (
	MediaPhoto MediaKind = iota + 1
	MediaVideo
	MediaDocument
)

func (k MediaKind) String() string {
	switch k {
	case MediaPhoto:
		return "photo"
	case MediaVideo:
		return "video"
	case MediaDocument:
		return "document"
	default:
		return "unknown"
	}
}

// ParseMediaKind resolves a textual kind once at ingestion.
func ParseMediaKind(s string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "photo", "image":
		return MediaPhoto, true
	case "video":
		return MediaVideo, true
	case "document", "file":
		return MediaDocument, true
	default:
		return 0, false
	}
}

// MediaRef points at a media item that still has to be retrieved.
type MediaRef struct {
	Kind     MediaKind `json:"kind"`
	FileID   string    `json:"file_id"`
	FileName string    `json:"file_name,omitempty"`
	Size     int64     `json:"size,omitempty"`
}

// SourceMessage is an inbound post from a monitored channel. Immutable once received.
type SourceMessage struct {
	ID         int64
	ChannelID  string
	Text       string
	Media      []MediaRef
	GroupID    string
	ReceivedAt time.Time
}

// Key identifies the message for the dedup ledger.
func (m SourceMessage) Key() MessageKey {
	return MessageKey{MessageID: m.ID, ChannelID: m.ChannelID}
}

// MessageKey is the (messageId, sourceChannelId) pair.
type MessageKey struct {
	MessageID int64
	ChannelID string
}

func (k MessageKey) String() string {
	return k.ChannelID + "/" + strconv.FormatInt(k.MessageID, 10)
}

// Price is an extracted amount with markup applied.
type Price struct {
	Original      float64 `json:"original"`
	Currency      string  `json:"currency"`
	MarkupPercent float64 `json:"markup_percent"`
	Final         float64 `json:"final"`
}

// ProcessedContent is the extraction result for a SourceMessage.
type ProcessedContent struct {
	ItemName string
	Price    *Price
	Media    []MediaRef
	GroupID  string
}

// MediaTypes selects which media kinds a channel forwards.
type MediaTypes struct {
	Photos    bool `json:"photos" yaml:"photos"`
	Videos    bool `json:"videos" yaml:"videos"`
	Documents bool `json:"documents" yaml:"documents"`
}

// Allows reports whether media of kind k should be carried forward.
func (m MediaTypes) Allows(k MediaKind) bool {
	switch k {
	case MediaPhoto:
		return m.Photos
	case MediaVideo:
		return m.Videos
	case MediaDocument:
		return m.Documents
	default:
		return false
	}
}

// ChannelConfig is the monitoring configuration of one source channel.
type ChannelConfig struct {
	ChannelID        string      `json:"channel_id" yaml:"channel_id"`
	ChannelName      string      `json:"channel_name,omitempty" yaml:"channel_name,omitempty"`
	Active           *bool       `json:"active,omitempty" yaml:"active,omitempty"`
	IncludeText      *bool       `json:"include_text,omitempty" yaml:"include_text,omitempty"`
	IncludePrice     *bool       `json:"include_price,omitempty" yaml:"include_price,omitempty"`
	PricePattern     string      `json:"price_pattern,omitempty" yaml:"price_pattern,omitempty"`
	MediaTypes       *MediaTypes `json:"media_types,omitempty" yaml:"media_types,omitempty"`
	DestinationTopic int         `json:"destination_topic,omitempty" yaml:"destination_topic,omitempty"`
}

// IsActive defaults to true when unset.
func (c ChannelConfig) IsActive() bool { return boolOr(c.Active, true) }

// TextEnabled defaults to true when unset.
func (c ChannelConfig) TextEnabled() bool { return boolOr(c.IncludeText, true) }

// AllowsMedia reports whether media of kind k is forwarded; photos only when unset.
func (c ChannelConfig) AllowsMedia(k MediaKind) bool {
	if c.MediaTypes == nil {
		return k == MediaPhoto
	}
	return c.MediaTypes.Allows(k)
}

// PriceEnabled defaults to true when unset.
func (c ChannelConfig) PriceEnabled() bool { return boolOr(c.IncludePrice, true) }

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Destination describes where a processed item is delivered.
type Destination struct {
	ChatID      int64
	TopicID     int
	Attribution string
}
