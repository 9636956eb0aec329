package telegram

import (
	"fmt"

	"github.com/mymmrac/telego"
	"github.com/samvad-hq/channel-relay/internal/logger"
)

// NewBot creates a Bot API client. Library logs go through the zap logger
// when it is initialised.
func NewBot(token string) (*telego.Bot, error) {
	var opts []telego.BotOption
	if logger.S != nil {
		opts = append(opts, telego.WithLogger(logger.S))
	} else {
		opts = append(opts, telego.WithDiscardLogger())
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}
