package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/relay-bot/internal/dialog"
)

const (
	callbackAccept = "paraphrase_accept"
	callbackReject = "paraphrase_reject"
)

// chatResponder answers in a chat with new messages.
type chatResponder struct {
	s         sender
	chatID    int64
	replyToID int
}

func (r chatResponder) Reply(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(r.chatID, text)
	msg.ReplyToMessageID = r.replyToID
	_, err := r.s.Send(msg)
	return err
}

func (r chatResponder) Menu(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(r.chatID, text)
	msg.ReplyMarkup = menuKeyboard()
	_, err := r.s.Send(msg)
	return err
}

func (r chatResponder) Offer(_ context.Context, text, token string) error {
	msg := tgbotapi.NewMessage(r.chatID, text)
	msg.ReplyToMessageID = r.replyToID
	msg.ReplyMarkup = offerKeyboard(token)
	_, err := r.s.Send(msg)
	return err
}

func (r chatResponder) Typing(_ context.Context) error {
	_, err := r.s.Request(tgbotapi.NewChatAction(r.chatID, tgbotapi.ChatTyping))
	return err
}

// callbackResponder edits the message that carried the pressed button.
type callbackResponder struct {
	chatResponder
	messageID int
}

func (r callbackResponder) Reply(_ context.Context, text string) error {
	_, err := r.s.Send(tgbotapi.NewEditMessageText(r.chatID, r.messageID, text))
	return err
}

func menuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for _, labels := range dialog.MenuLayout() {
		var row []tgbotapi.KeyboardButton
		for _, label := range labels {
			row = append(row, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(row...))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

func offerKeyboard(token string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Отправить этот вариант", fmt.Sprintf("%s:%s", callbackAccept, token)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Не отправлять", fmt.Sprintf("%s:%s", callbackReject, token)),
		),
	)
}
