package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/relay-bot/internal/dialog"
	"go.uber.org/zap"
)

type fakeSender struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) texts() []string {
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeDialog struct {
	calls       []string
	incoming    dialog.Incoming
	resolution  dialog.Resolution
	err         error
	respondWith string
}

func (f *fakeDialog) HandleMessage(ctx context.Context, in dialog.Incoming, r dialog.Responder) error {
	f.calls = append(f.calls, "message")
	f.incoming = in
	if f.respondWith != "" {
		r.Reply(ctx, f.respondWith)
	}
	return f.err
}

func (f *fakeDialog) Resolve(ctx context.Context, res dialog.Resolution, r dialog.Responder) error {
	f.calls = append(f.calls, "resolve")
	f.resolution = res
	if f.respondWith != "" {
		r.Reply(ctx, f.respondWith)
	}
	return f.err
}

func (f *fakeDialog) Start(ctx context.Context, in dialog.Incoming, r dialog.Responder) error {
	f.calls = append(f.calls, "start")
	f.incoming = in
	return r.Menu(ctx, "welcome")
}

func (f *fakeDialog) Help(ctx context.Context, in dialog.Incoming, r dialog.Responder) error {
	f.calls = append(f.calls, "help")
	f.incoming = in
	return nil
}

func (f *fakeDialog) About(ctx context.Context, in dialog.Incoming, r dialog.Responder) error {
	f.calls = append(f.calls, "about")
	f.incoming = in
	return nil
}

func (f *fakeDialog) Reset(ctx context.Context, in dialog.Incoming, r dialog.Responder) error {
	f.calls = append(f.calls, "reset")
	return nil
}

func newTestBot() (*Bot, *fakeSender, *fakeDialog) {
	fs := &fakeSender{}
	fd := &fakeDialog{}
	return &Bot{s: fs, dialog: fd, logger: zap.NewNop()}, fs, fd
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: 42, UserName: "ivan", FirstName: "Иван"},
		Chat:      &tgbotapi.Chat{ID: 100},
		Text:      text,
	}
}

func commandMessage(cmd string) *tgbotapi.Message {
	m := textMessage("/" + cmd)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return m
}

func TestHandleMessage_ForwardsText(t *testing.T) {
	b, fs, fd := newTestBot()
	fd.respondWith = "ответ"

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMessage("Привет")})

	if len(fd.calls) != 1 || fd.calls[0] != "message" {
		t.Fatalf("calls = %v", fd.calls)
	}
	want := dialog.Incoming{UserID: 42, ChatID: 100, Username: "ivan", FirstName: "Иван", Text: "Привет"}
	if fd.incoming != want {
		t.Fatalf("incoming = %+v", fd.incoming)
	}
	if got := fs.texts(); len(got) != 1 || got[0] != "ответ" {
		t.Fatalf("sent = %v", got)
	}
	if reply := fs.sent[0].(tgbotapi.MessageConfig); reply.ReplyToMessageID != 10 {
		t.Fatalf("reply_to = %d, want 10", reply.ReplyToMessageID)
	}
}

func TestHandleMessage_CaptionAndEmpty(t *testing.T) {
	b, _, fd := newTestBot()

	m := textMessage("")
	m.Caption = "подпись"
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: m})
	if fd.incoming.Text != "подпись" {
		t.Fatalf("caption not used: %+v", fd.incoming)
	}

	fd.calls = nil
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMessage("")})
	if len(fd.calls) != 0 {
		t.Fatalf("empty message forwarded: %v", fd.calls)
	}
}

func TestHandleMessage_ErrorNotifiesUser(t *testing.T) {
	b, fs, fd := newTestBot()
	fd.err = errors.New("db down")

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMessage("Привет")})

	got := fs.texts()
	if len(got) != 1 || !strings.HasPrefix(got[0], "⚠️ ") {
		t.Fatalf("sent = %v", got)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"start", "start"},
		{"help", "help"},
		{"about", "about"},
		{"reset", "reset"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			b, _, fd := newTestBot()
			b.handleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage(tt.cmd)})
			if len(fd.calls) != 1 || fd.calls[0] != tt.want {
				t.Fatalf("calls = %v", fd.calls)
			}
		})
	}
}

func TestStartSendsMenuKeyboard(t *testing.T) {
	b, fs, _ := newTestBot()
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage("start")})

	if len(fs.sent) != 1 {
		t.Fatalf("sent %d messages", len(fs.sent))
	}
	msg := fs.sent[0].(tgbotapi.MessageConfig)
	kb, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("reply markup = %T", msg.ReplyMarkup)
	}
	if len(kb.Keyboard) != 2 || kb.Keyboard[0][0].Text != dialog.ButtonAsk ||
		kb.Keyboard[1][0].Text != dialog.ButtonHelp || kb.Keyboard[1][1].Text != dialog.ButtonReset {
		t.Fatalf("keyboard = %+v", kb.Keyboard)
	}
}

func TestUnknownCommand(t *testing.T) {
	b, fs, fd := newTestBot()
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage("tags")})
	if len(fd.calls) != 0 {
		t.Fatalf("calls = %v", fd.calls)
	}
	if got := fs.texts(); len(got) != 1 || !strings.Contains(got[0], "/help") {
		t.Fatalf("sent = %v", got)
	}
}

func TestOfferKeyboard(t *testing.T) {
	fs := &fakeSender{}
	r := chatResponder{s: fs, chatID: 100}
	if err := r.Offer(context.Background(), "Отправить этот вариант?", "tok-1"); err != nil {
		t.Fatalf("Offer: %v", err)
	}

	msg := fs.sent[0].(tgbotapi.MessageConfig)
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d", len(kb.InlineKeyboard))
	}
	accept := kb.InlineKeyboard[0][0].CallbackData
	reject := kb.InlineKeyboard[1][0].CallbackData
	if accept == nil || *accept != "paraphrase_accept:tok-1" {
		t.Fatalf("accept data = %v", accept)
	}
	if reject == nil || *reject != "paraphrase_reject:tok-1" {
		t.Fatalf("reject data = %v", reject)
	}
}

func TestTypingUsesChatAction(t *testing.T) {
	fs := &fakeSender{}
	r := chatResponder{s: fs, chatID: 100}
	r.Typing(context.Background())
	if len(fs.requests) != 1 {
		t.Fatalf("requests = %d", len(fs.requests))
	}
	if action, ok := fs.requests[0].(tgbotapi.ChatActionConfig); !ok || action.Action != tgbotapi.ChatTyping {
		t.Fatalf("request = %#v", fs.requests[0])
	}
}

func TestHandleCallback(t *testing.T) {
	b, fs, fd := newTestBot()
	fd.respondWith = "готово"

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: 100}},
		Data:    "paraphrase_reject:tok-9",
	}
	b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb})

	want := dialog.Resolution{UserID: 42, Token: "tok-9", Action: dialog.ActionReject}
	if fd.resolution != want {
		t.Fatalf("resolution = %+v", fd.resolution)
	}
	if len(fs.requests) != 1 {
		t.Fatalf("callback not answered: %d requests", len(fs.requests))
	}
	edit, ok := fs.sent[0].(tgbotapi.EditMessageTextConfig)
	if !ok || edit.MessageID != 77 || edit.Text != "готово" {
		t.Fatalf("sent = %#v", fs.sent[0])
	}
}

func TestHandleCallback_IgnoresForeignData(t *testing.T) {
	b, fs, fd := newTestBot()
	cb := &tgbotapi.CallbackQuery{
		ID:      "cb-2",
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: 100}},
		Data:    "summary",
	}
	b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb})
	if len(fd.calls) != 0 {
		t.Fatalf("calls = %v", fd.calls)
	}
	if len(fs.requests) != 1 {
		t.Fatal("callback must still be answered")
	}
}

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		data   string
		action dialog.Action
		token  string
		ok     bool
	}{
		{"paraphrase_accept:abc", dialog.ActionAccept, "abc", true},
		{"paraphrase_reject:abc", dialog.ActionReject, "abc", true},
		{"paraphrase_accept:", "", "", false},
		{"paraphrase_maybe:abc", "", "", false},
		{"garbage", "", "", false},
	}
	for _, tt := range tests {
		action, token, ok := parseCallbackData(tt.data)
		if action != tt.action || token != tt.token || ok != tt.ok {
			t.Errorf("parseCallbackData(%q) = %q, %q, %v", tt.data, action, token, ok)
		}
	}
}
