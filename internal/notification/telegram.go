package notification

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	channel string // "@channelname" destinations
}

// NewTelegramNotifier creates a Telegram notifier against the public Bot API.
// botToken: Bot API token from @BotFather
// chatID: numeric chat/group ID or "@channel" username
func NewTelegramNotifier(botToken, chatID string) (*TelegramNotifier, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	return NewTelegramNotifierWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, client)
}

var botTokenPattern = regexp.MustCompile(`^[0-9]+:[A-Za-z0-9_-]+$`)

// NewTelegramNotifierWithEndpoint creates a Telegram notifier against a custom
// endpoint (format "https://host/bot%s/%s"). No request is made here: only a
// malformed token or chat ID is an error. Use Verify to check the token.
func NewTelegramNotifierWithEndpoint(botToken, chatID, endpoint string, client tgbotapi.HTTPClient) (*TelegramNotifier, error) {
	if !botTokenPattern.MatchString(botToken) {
		return nil, fmt.Errorf("telegram: malformed bot token")
	}
	n := &TelegramNotifier{}
	if strings.HasPrefix(chatID, "@") {
		n.channel = chatID
	} else {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
		}
		n.chatID = id
	}

	bot := &tgbotapi.BotAPI{
		Token:  botToken,
		Client: client,
		Buffer: 100,
	}
	bot.SetAPIEndpoint(endpoint)
	n.bot = bot
	return n, nil
}

// Verify calls getMe. Failures wrap ErrTransport and are not fatal: the
// token is checked again by every send.
func (t *TelegramNotifier) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: telegram: %v", ErrTransport, err)
	}
	me, err := t.bot.GetMe()
	if err != nil {
		return fmt.Errorf("%w: telegram: getMe: %v", ErrTransport, err)
	}
	t.bot.Self = me
	return nil
}

// Username returns the bot username once Verify succeeded.
func (t *TelegramNotifier) Username() string { return t.bot.Self.UserName }

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: telegram: %v", ErrTransport, err)
	}

	text := alert.Message
	switch alert.Level {
	case AlertWarning:
		text = "⚠️ " + text
	case AlertCritical:
		text = "🚨 " + text
	}

	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, text)
	}

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("%w: telegram: send: %v", ErrTransport, err)
	}
	return nil
}
