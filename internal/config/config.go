// Package config loads flowgraph settings from defaults, an optional
// flowgraph.yaml file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/meikuraledutech/flowgraph/runner"
)

// Config holds server and runner settings.
type Config struct {
	HTTPAddress string
	DatabaseURL string

	LogLevel  string
	LogPretty bool

	OpenAIAPIKey  string
	OpenAIBaseURL string
	GoogleAPIKey  string
	GoogleCSEID   string
	RedisAddr     string

	ConditionTimeout time.Duration
}

var envMappings = map[string]string{
	"HTTPAddress":      "HTTP_ADDRESS",
	"DatabaseURL":      "DATABASE_URL",
	"LogLevel":         "LOG_LEVEL",
	"LogPretty":        "LOG_PRETTY",
	"OpenAIAPIKey":     "OPENAI_API_KEY",
	"OpenAIBaseURL":    "OPENAI_BASE_URL",
	"GoogleAPIKey":     "GOOGLE_API_KEY",
	"GoogleCSEID":      "GOOGLE_CSE_ID",
	"RedisAddr":        "REDIS_ADDR",
	"ConditionTimeout": "CONDITION_TIMEOUT",
}

// Load reads the configuration. An empty file searches for flowgraph.yaml
// in ., ./config and $HOME/.flowgraph and tolerates its absence; a named
// file must exist. Environment variables override the file.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envMappings {
		if err := v.BindEnv(key, env); err != nil {
			log.Warn().Err(err).Msgf("failed to bind environment variable %s for %s", env, key)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("flowgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.flowgraph")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
		log.Debug().Msg("config file not found, using environment variables and defaults")
	} else {
		log.Debug().Msgf("using config file: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTPAddress", ":3000")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogPretty", true)
	v.SetDefault("OpenAIBaseURL", "https://api.deepseek.com/v1")
	v.SetDefault("ConditionTimeout", 2*time.Second)
}

// RequireDatabase reports a missing DATABASE_URL.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("config: missing required environment variable DATABASE_URL")
	}
	return nil
}

// RunnerSettings returns the runner backends selected by c.
func (c *Config) RunnerSettings() runner.Settings {
	return runner.Settings{
		OpenAIAPIKey:     c.OpenAIAPIKey,
		OpenAIBaseURL:    c.OpenAIBaseURL,
		GoogleAPIKey:     c.GoogleAPIKey,
		GoogleCSEID:      c.GoogleCSEID,
		RedisAddr:        c.RedisAddr,
		ConditionTimeout: c.ConditionTimeout,
	}
}

// SetupLogging points the global zerolog logger at w (stderr when nil) with
// the configured level and format, and returns it.
func (c *Config) SetupLogging(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if c.LogPretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return log.Logger
}
