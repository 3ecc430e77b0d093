package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xaenox/relay-bot/internal/models"
)

type fakeLLM struct {
	reply string
	err   error
	got   []Message
	delay time.Duration
}

func (f *fakeLLM) Generate(ctx context.Context, messages []Message) (Response, error) {
	f.got = messages
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Content: f.reply}, nil
}

func TestAssistant_GenerateBuildsContext(t *testing.T) {
	fake := &fakeLLM{reply: "  ответ \n"}
	a := NewAssistant(fake, "system", 0)

	history := []models.MessageRecord{
		{Role: models.RoleUser, Content: "первый"},
		{Role: models.RoleAssistant, Content: "второй"},
	}
	got, err := a.Generate(context.Background(), history, "третий")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "ответ" {
		t.Fatalf("reply not trimmed: %q", got)
	}

	want := []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "первый"},
		{Role: RoleAssistant, Content: "второй"},
		{Role: RoleUser, Content: "третий"},
	}
	if len(fake.got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(fake.got), len(want))
	}
	for i := range want {
		if fake.got[i] != want[i] {
			t.Fatalf("message %d = %+v, want %+v", i, fake.got[i], want[i])
		}
	}
}

func TestAssistant_DefaultSystemPrompt(t *testing.T) {
	fake := &fakeLLM{reply: "ok"}
	a := NewAssistant(fake, "   ", 0)
	a.Generate(context.Background(), nil, "hi")
	if fake.got[0].Content != DefaultSystemPrompt {
		t.Fatalf("system prompt = %q", fake.got[0].Content)
	}
}

func TestAssistant_GenerateError(t *testing.T) {
	a := NewAssistant(&fakeLLM{err: errors.New("boom")}, "", 0)
	if _, err := a.Generate(context.Background(), nil, "hi"); err == nil {
		t.Fatal("expected error")
	}
}

func TestAssistant_Timeout(t *testing.T) {
	a := NewAssistant(&fakeLLM{reply: "late", delay: time.Second}, "", 10*time.Millisecond)
	_, err := a.Generate(context.Background(), nil, "hi")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestAssistant_Paraphrase(t *testing.T) {
	fake := &fakeLLM{reply: " Ты неправ. "}
	a := NewAssistant(fake, "", 0)

	got, err := a.Paraphrase(context.Background(), "ты мудак", models.ReasonProfanity)
	if err != nil {
		t.Fatalf("Paraphrase: %v", err)
	}
	if got != "Ты неправ." {
		t.Fatalf("Paraphrase() = %q", got)
	}
	if len(fake.got) != 2 || fake.got[0].Role != RoleSystem {
		t.Fatalf("unexpected prompt: %+v", fake.got)
	}
	if !strings.Contains(fake.got[1].Content, "«ты мудак»") {
		t.Fatalf("original text missing from prompt: %q", fake.got[1].Content)
	}
}

func TestAssistant_ParaphraseEmpty(t *testing.T) {
	a := NewAssistant(&fakeLLM{reply: "   "}, "", 0)
	if _, err := a.Paraphrase(context.Background(), "x", models.ReasonModeration); !errors.Is(err, ErrEmptyParaphrase) {
		t.Fatalf("got %v, want ErrEmptyParaphrase", err)
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(ProviderConfig{Provider: "OpenAI", OpenAIAPIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if oc, ok := c.(*OpenAIClient); !ok || oc.model != DefaultOpenAIModel {
		t.Fatalf("unexpected client: %#v", c)
	}
	if _, err := NewClient(ProviderConfig{Provider: "gigachat"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
