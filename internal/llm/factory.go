package llm

import (
	"fmt"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

type ProviderConfig struct {
	Provider         string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	YandexOAuthToken string
	YandexFolderID   string
}

func NewClient(cfg ProviderConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	case ProviderYandex:
		return NewYandex(cfg.YandexOAuthToken, cfg.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
