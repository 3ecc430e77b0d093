package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/relay-bot/internal/models"
)

const DefaultSystemPrompt = "Ты — дружелюбный и полезный ассистент в Telegram-боте. " +
	"Отвечай вежливо, по делу и на том языке, на котором задают вопрос. " +
	"Если вопрос неясен — запроси уточнение. " +
	"Избегай токсичности, оскорблений и запрещённого контента."

const paraphraseSystemPrompt = "Ты помощник по перефразированию сообщений."

var ErrEmptyParaphrase = errors.New("paraphrase is empty")

// Assistant builds prompts for answer generation and message rewriting on
// top of a Client.
type Assistant struct {
	client       Client
	systemPrompt string
	timeout      time.Duration
}

func NewAssistant(client Client, systemPrompt string, timeout time.Duration) *Assistant {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Assistant{client: client, systemPrompt: systemPrompt, timeout: timeout}
}

// Generate answers userText given the dialog history (oldest first). The
// reply is trimmed; an empty string is a valid result.
func (a *Assistant) Generate(ctx context.Context, history []models.MessageRecord, userText string) (string, error) {
	msgs := BuildChatInput(a.systemPrompt, history, userText)

	resp, err := a.call(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Paraphrase asks the model to rewrite text without profanity or abuse,
// keeping its meaning and language.
func (a *Assistant) Paraphrase(ctx context.Context, text string, reason models.RemediationReason) (string, error) {
	msgs := []Message{
		{Role: RoleSystem, Content: paraphraseSystemPrompt},
		{Role: RoleUser, Content: paraphrasePrompt(text, reason)},
	}

	resp, err := a.call(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("paraphrase: %w", err)
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", ErrEmptyParaphrase
	}
	return out, nil
}

func (a *Assistant) call(ctx context.Context, msgs []Message) (Response, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.client.Generate(ctx, msgs)
}

// BuildChatInput lays out the system prompt, the history and the new user
// message in order.
func BuildChatInput(systemPrompt string, history []models.MessageRecord, userText string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	for _, rec := range history {
		msgs = append(msgs, Message{Role: string(rec.Role), Content: rec.Content})
	}
	return append(msgs, Message{Role: RoleUser, Content: userText})
}

func paraphrasePrompt(text string, reason models.RemediationReason) string {
	var focus string
	switch reason {
	case models.ReasonModeration:
		focus = "Сообщение было отклонено автоматической модерацией. "
	default:
		focus = "Сообщение содержит ненормативную лексику. "
	}
	return focus +
		"Перефразируй сообщение пользователя так, чтобы оно не содержало мата, " +
		"оскорблений, дискриминации или призывов к насилию. " +
		"Сохрани исходный смысл и язык сообщения. " +
		"Верни только новый вариант сообщения, без пояснений.\n\n" +
		"Исходное сообщение: «" + text + "»"
}
