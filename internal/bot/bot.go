package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/relay-bot/internal/dialog"
	"go.uber.org/zap"
)

// Dialog is the conversation logic the transport feeds.
type Dialog interface {
	HandleMessage(ctx context.Context, in dialog.Incoming, r dialog.Responder) error
	Resolve(ctx context.Context, res dialog.Resolution, r dialog.Responder) error
	Start(ctx context.Context, in dialog.Incoming, r dialog.Responder) error
	Help(ctx context.Context, in dialog.Incoming, r dialog.Responder) error
	About(ctx context.Context, in dialog.Incoming, r dialog.Responder) error
	Reset(ctx context.Context, in dialog.Incoming, r dialog.Responder) error
}

type Bot struct {
	api    *tgbotapi.BotAPI
	s      sender
	dialog Dialog
	logger *zap.Logger
	wg     sync.WaitGroup
}

func New(token string, d Dialog, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))

	return &Bot{
		api:    api,
		s:      botAPISender{api: api},
		dialog: d,
		logger: logger,
	}, nil
}

// Start polls updates until ctx is cancelled, then waits for in-flight
// handlers to finish.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic while handling update", zap.Any("panic", r), zap.Int("update_id", update.UpdateID))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}

	r := chatResponder{s: b.s, chatID: message.Chat.ID, replyToID: message.MessageID}
	in := incomingFrom(message)

	var err error
	if message.IsCommand() {
		err = b.handleCommand(ctx, message.Command(), in, r)
	} else {
		if in.Text == "" {
			return
		}
		err = b.dialog.HandleMessage(ctx, in, r)
	}
	if err != nil {
		b.logger.Error("Failed to handle message",
			zap.Error(err),
			zap.Int64("user_id", in.UserID),
			zap.Int64("chat_id", in.ChatID))
		b.sendErrorMessage(message.Chat.ID, dialog.InternalErrorText())
	}
}

func (b *Bot) handleCommand(ctx context.Context, command string, in dialog.Incoming, r chatResponder) error {
	switch command {
	case "start":
		return b.dialog.Start(ctx, in, r)
	case "help":
		return b.dialog.Help(ctx, in, r)
	case "about":
		return b.dialog.About(ctx, in, r)
	case "reset":
		return b.dialog.Reset(ctx, in, r)
	default:
		b.sendMessage(in.ChatID, "Неизвестная команда. Используй /help, чтобы увидеть список команд.")
		return nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err), zap.String("callback_id", cb.ID))
	}
	if cb.Message == nil || cb.From == nil {
		return
	}

	action, token, ok := parseCallbackData(cb.Data)
	if !ok {
		return
	}

	r := callbackResponder{
		chatResponder: chatResponder{s: b.s, chatID: cb.Message.Chat.ID},
		messageID:     cb.Message.MessageID,
	}
	res := dialog.Resolution{UserID: cb.From.ID, Token: token, Action: action}
	if err := b.dialog.Resolve(ctx, res, r); err != nil {
		b.logger.Error("Failed to resolve paraphrase",
			zap.Error(err),
			zap.Int64("user_id", cb.From.ID),
			zap.String("action", string(action)))
		b.sendErrorMessage(cb.Message.Chat.ID, dialog.InternalErrorText())
	}
}

// parseCallbackData splits "<prefix>:<token>" into an action and a token.
func parseCallbackData(data string) (dialog.Action, string, bool) {
	prefix, token, found := strings.Cut(data, ":")
	if !found || token == "" {
		return "", "", false
	}
	switch prefix {
	case callbackAccept:
		return dialog.ActionAccept, token, true
	case callbackReject:
		return dialog.ActionReject, token, true
	default:
		return "", "", false
	}
}

func incomingFrom(message *tgbotapi.Message) dialog.Incoming {
	text := message.Text
	if text == "" {
		text = message.Caption
	}
	return dialog.Incoming{
		UserID:    message.From.ID,
		ChatID:    message.Chat.ID,
		Username:  message.From.UserName,
		FirstName: message.From.FirstName,
		Text:      text,
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.s.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
