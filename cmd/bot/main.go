package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xaenox/relay-bot/internal/bot"
	"github.com/xaenox/relay-bot/internal/dialog"
	"github.com/xaenox/relay-bot/internal/events"
	"github.com/xaenox/relay-bot/internal/llm"
	"github.com/xaenox/relay-bot/internal/moderation"
	"github.com/xaenox/relay-bot/internal/ops"
	"github.com/xaenox/relay-bot/internal/policy"
	"github.com/xaenox/relay-bot/internal/remediation"
	"github.com/xaenox/relay-bot/internal/storage"
	"github.com/xaenox/relay-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Log.Development {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err), zap.String("path", *configPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := storage.New(storage.DatabaseConfig{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	client, err := llm.NewClient(llm.ProviderConfig{
		Provider:         cfg.LLM.Provider,
		OpenAIAPIKey:     cfg.OpenAI.APIKey,
		OpenAIBaseURL:    cfg.OpenAI.BaseURL,
		OpenAIModel:      cfg.OpenAI.Model,
		YandexOAuthToken: cfg.Yandex.OAuthToken,
		YandexFolderID:   cfg.Yandex.FolderID,
	})
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}
	assistant := llm.NewAssistant(client, cfg.LLM.SystemPrompt, cfg.LLM.Timeout)

	var classifier moderation.Classifier
	if cfg.Moderation.Enabled {
		classifier = moderation.NewOpenAIClassifier(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.ModerationModel)
	} else {
		logger.Info("Remote moderation disabled")
	}
	moderator := moderation.NewAdapter(classifier, cfg.Moderation.Timeout, logger)

	var sessions remediation.Store
	switch cfg.Remediation.Backend {
	case "redis":
		rdb, err := remediation.NewRedisClient(ctx, cfg.Remediation.RedisURL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		sessions = remediation.NewRedisStore(rdb, cfg.Remediation.TTL)
		logger.Info("Using Redis remediation sessions")
	default:
		mem := remediation.NewMemoryStore(cfg.Remediation.TTL, logger)
		if cfg.Remediation.TTL > 0 {
			if err := mem.StartSweeper(cfg.Remediation.SweepSchedule); err != nil {
				logger.Fatal("Failed to start session sweeper", zap.Error(err))
			}
			defer mem.Stop()
		}
		sessions = mem
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.NATSURL != "" {
		nc, err := events.NewNATSPublisher(cfg.Events.NATSURL, logger)
		if err != nil {
			logger.Warn("NATS unavailable, moderation events disabled", zap.Error(err))
		} else {
			publisher = nc
		}
	}
	defer publisher.Close()

	orch := dialog.New(dialog.Deps{
		Storage:   store,
		Policy:    policy.New(store, cfg.Policy.MuteThreshold, cfg.Policy.UnlockWord),
		Lexicon:   moderation.NewLexicon(),
		Moderator: moderator,
		Assistant: assistant,
		Sessions:  sessions,
		Events:    publisher,
		Logger:    logger,
	}, dialog.Options{
		MaxMessageLength: cfg.Policy.MaxMessageLength,
		ContextWindow:    cfg.Policy.ContextWindow,
	})

	if cfg.Ops.Addr != "" {
		srv := ops.NewServer(cfg.Ops.Addr, map[string]ops.Pinger{"storage": store}, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Ops server forced to shutdown", zap.Error(err))
			}
		}()
	}

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, orch, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	logger.Info("Bot started")
	if err := b.Start(ctx); err != nil {
		logger.Error("Bot error", zap.Error(err))
	}
	logger.Info("Bot stopped")
}
