package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram Telegram `mapstructure:"telegram"`
	Gemini   Gemini   `mapstructure:"gemini"`
	AI       AI       `mapstructure:"ai"`
	Store    Store    `mapstructure:"store"`
	HTTP     HTTP     `mapstructure:"http"`
	Log      Log      `mapstructure:"log"`
}

type Telegram struct {
	Token       string `mapstructure:"token"`
	PollTimeout int    `mapstructure:"poll_timeout"`
}

type Gemini struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
	TopK        int     `mapstructure:"top_k"`
}

type AI struct {
	Provider      string `mapstructure:"provider"`
	ContextWindow int    `mapstructure:"context_window"`
	OllamaBaseURL string `mapstructure:"ollama_base_url"`
	OllamaModel   string `mapstructure:"ollama_model"`
}

type Store struct {
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	BusyTimeout   time.Duration `mapstructure:"busy_timeout"`
	RetentionDays int           `mapstructure:"retention_days"`
}

type HTTP struct {
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads config.yaml from the given directory (./config when empty) and
// applies GEMBOT_-prefixed environment overrides, e.g. GEMBOT_TELEGRAM_TOKEN
// or GEMBOT_STORE_DSN. A missing file is fine; the environment may carry
// everything.
func Load(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "./config"
	}
	v.AddConfigPath(dir)
	v.AddConfigPath(".")

	v.SetEnvPrefix("GEMBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.poll_timeout", 30)

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.7)
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.top_p", 0.8)
	v.SetDefault("gemini.top_k", 40)

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.context_window", 20)
	v.SetDefault("ai.ollama_base_url", "http://localhost:11434")
	v.SetDefault("ai.ollama_model", "llama3:latest")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "gembot.db")
	v.SetDefault("store.busy_timeout", 5*time.Second)
	v.SetDefault("store.retention_days", 0) // 0 disables the purge loop

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("config: telegram.token is required")
	}
	switch c.AI.Provider {
	case "gemini":
		if strings.TrimSpace(c.Gemini.APIKey) == "" {
			return fmt.Errorf("config: gemini.api_key is required for the gemini provider")
		}
	case "ollama":
	default:
		return fmt.Errorf("config: unknown ai.provider %q", c.AI.Provider)
	}
	switch c.Store.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.RetentionDays < 0 {
		return fmt.Errorf("config: store.retention_days must be >= 0")
	}
	return nil
}
