// Package chattransport is the boundary-only wrapper around Telegram,
// the chat provider: it knows how to send a text or photo message with
// inline buttons and how to classify the provider's errors, and nothing
// else.
package chattransport

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Button is one inline keyboard button: Data becomes the callback_data
// payload for a reaction button, URL makes it a link button instead.
type Button struct {
	Text string
	Data string
	URL  string
}

// Sentinel errors the delivery worker classifies on: ErrUnauthorized
// means the user blocked the bot (flip them inactive), ErrBadRequest
// means the provider rejected the request (terminal, no retry), and
// anything wrapping neither is transient (retry).
var (
	ErrUnauthorized = errors.New("chattransport: unauthorized")
	ErrBadRequest   = errors.New("chattransport: bad request")
)

// Transport is the interface the delivery worker sends through. It names
// only the two send operations; everything else (command parsing, menu
// rendering, admin commands) is the chat-command front-end's concern,
// not this boundary's.
type Transport interface {
	SendText(chatID int64, text string, buttons []Button) error
	SendPhoto(chatID int64, photoURL, caption string, buttons []Button) error
}

// Dispatcher is the inbound half of the chat boundary: the chat-command
// front-end (command parsing, menu rendering, admin commands, reaction
// callbacks) implements it and writes users/preferences through the
// store on its own. No concrete implementation ships in this repository,
// and the notifier does not start one; it runs only the delivery worker.
type Dispatcher interface {
	Run(ctx context.Context, stop <-chan struct{}) error
}

// Bot wraps a live *tgbotapi.BotAPI.
type Bot struct {
	api *tgbotapi.BotAPI
}

// New constructs a Bot authenticated with token.
func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("chattransport: new bot api: %w", err)
	}
	return &Bot{api: api}, nil
}

func buildMarkup(buttons []Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		if b.URL != "" {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
		} else {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)
	return &markup
}

// SendText sends a plain text message with optional inline buttons.
func (b *Bot) SendText(chatID int64, text string, buttons []Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup := buildMarkup(buttons); markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := b.api.Send(msg)
	return classify(err)
}

// SendPhoto sends a lead image with a caption and optional inline buttons.
func (b *Bot) SendPhoto(chatID int64, photoURL, caption string, buttons []Button) error {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup := buildMarkup(buttons); markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := b.api.Send(msg)
	return classify(err)
}

// classify maps a tgbotapi error onto the sentinel set: 401/403 (bot
// blocked or kicked) becomes ErrUnauthorized, 400 becomes ErrBadRequest,
// anything else is left unwrapped so the delivery worker retries it.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case 400:
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}
	return err
}
