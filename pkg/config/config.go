package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Yandex      YandexConfig      `mapstructure:"yandex"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Moderation  ModerationConfig  `mapstructure:"moderation"`
	Policy      PolicyConfig      `mapstructure:"policy"`
	Remediation RemediationConfig `mapstructure:"remediation"`
	Events      EventsConfig      `mapstructure:"events"`
	Ops         OpsConfig         `mapstructure:"ops"`
	Log         LogConfig         `mapstructure:"log"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type OpenAIConfig struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	Model           string `mapstructure:"model"`
	ModerationModel string `mapstructure:"moderation_model"`
}

type YandexConfig struct {
	OAuthToken string `mapstructure:"oauth_token"`
	FolderID   string `mapstructure:"folder_id"`
}

type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type ModerationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PolicyConfig struct {
	MuteThreshold    int    `mapstructure:"mute_threshold"`
	UnlockWord       string `mapstructure:"unlock_word"`
	MaxMessageLength int    `mapstructure:"max_message_length"`
	ContextWindow    int    `mapstructure:"context_window"`
}

type RemediationConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	RedisURL      string        `mapstructure:"redis_url"`
}

type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
}

type OpsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("openai.model", "gpt-4.1-mini")
	v.SetDefault("openai.moderation_model", "omni-moderation-latest")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "bot.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("moderation.enabled", true)
	v.SetDefault("moderation.timeout", 10*time.Second)
	v.SetDefault("policy.mute_threshold", 3)
	v.SetDefault("policy.unlock_word", "пожалуйста")
	v.SetDefault("policy.max_message_length", 2000)
	v.SetDefault("policy.context_window", 20)
	v.SetDefault("remediation.backend", "memory")
	v.SetDefault("remediation.ttl", time.Hour)
	v.SetDefault("remediation.sweep_schedule", "@every 5m")
	v.SetDefault("ops.addr", ":9090")
	v.SetDefault("log.development", false)
}

// LoadConfig reads path (optional), then applies environment overrides.
// A .env file in the working directory is loaded first if present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.Path = config.Database.Path
		config.Database = dbConfig
	}
	if dbPath := v.GetString("DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if token := v.GetString("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		config.Remediation.RedisURL = redisURL
		config.Remediation.Backend = "redis"
	}
	if natsURL := v.GetString("NATS_URL"); natsURL != "" {
		config.Events.NATSURL = natsURL
	}

	return &config, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "":
		if c.OpenAI.APIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "yandex":
		if c.Yandex.OAuthToken == "" {
			missing = append(missing, "yandex.oauth_token")
		}
		if c.Yandex.FolderID == "" {
			missing = append(missing, "yandex.folder_id")
		}
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.Moderation.Enabled && c.OpenAI.APIKey == "" && !slices.Contains(missing, "OPENAI_API_KEY") {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Remediation.Backend == "redis" && c.Remediation.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

