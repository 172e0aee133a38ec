// Package config loads loc-stats settings from a YAML file and LOC_STATS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "LOC_STATS"

// Config holds all configuration for the application.
type Config struct {
	User        string             `mapstructure:"user"`
	Credentials []CredentialConfig `mapstructure:"credentials" validate:"unique=Label,dive"`
	Cache       CacheConfig        `mapstructure:"cache"`
	Stats       StatsConfig        `mapstructure:"stats"`
	Discovery   DiscoveryConfig    `mapstructure:"discovery"`
	History     HistoryConfig      `mapstructure:"history"`
	Output      OutputConfig       `mapstructure:"output"`
	Log         LogConfig          `mapstructure:"log"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
	Server      ServerConfig       `mapstructure:"server"`
}

// CredentialConfig names one token. The token is given inline or read from
// the TokenEnv variable.
type CredentialConfig struct {
	Label    string `mapstructure:"label" validate:"required"`
	Token    string `mapstructure:"token"`
	TokenEnv string `mapstructure:"token_env"`
}

// CacheConfig selects the cache backend and where it lives.
type CacheConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=file postgres"`
	Path       string `mapstructure:"path" validate:"required_if=Backend file"`
	DSN        string `mapstructure:"dsn" validate:"required_if=Backend postgres"`
	Checkpoint bool   `mapstructure:"checkpoint"`
}

// StatsConfig tunes the contributor statistics requests.
type StatsConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url" validate:"omitempty,url"`
	Pass2Wait      time.Duration `mapstructure:"pass2_wait" validate:"gte=0"`
	RateLimitFloor int           `mapstructure:"rate_limit_floor" validate:"gte=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// DiscoveryConfig picks the repository listing API.
type DiscoveryConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=rest graphql"`
}

// HistoryConfig controls the git history fallback.
type HistoryConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	CloneBaseURL string        `mapstructure:"clone_base_url"`
	GitBinary    string        `mapstructure:"git_binary"`
}

// OutputConfig sets the SVG card path and title.
type OutputConfig struct {
	SVGPath string `mapstructure:"svg_path" validate:"required"`
	Title   string `mapstructure:"title"`
}

// LogConfig sets the log level and writer format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// MetricsConfig names the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// ServerConfig holds the listen address of the serve command.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// Load reads configuration from path (or ./loc-stats.yaml when path is
// empty) and the environment. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("loc-stats")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("user", "")
	v.SetDefault("credentials", []map[string]any{
		{"label": "personal", "token_env": "LOC_STATS_TOKEN_PERSONAL"},
	})

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.path", "data/loc-cache.json")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.checkpoint", false)

	v.SetDefault("stats.api_base_url", "")
	v.SetDefault("stats.pass2_wait", "10s")
	v.SetDefault("stats.rate_limit_floor", 100)
	v.SetDefault("stats.request_timeout", "30s")

	v.SetDefault("discovery.backend", "rest")

	v.SetDefault("history.timeout", "300s")
	v.SetDefault("history.clone_base_url", "https://github.com")
	v.SetDefault("history.git_binary", "git")

	v.SetDefault("output.svg_path", "loc-stats.svg")
	v.SetDefault("output.title", "Lines of Code")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("server.addr", ":8080")
}

// ResolveCredentials returns the usable credentials in configured order.
// Entries without a token are logged and skipped.
func (c *Config) ResolveCredentials(logger zerolog.Logger) ([]domain.Credential, error) {
	var creds []domain.Credential
	for _, cc := range c.Credentials {
		token := cc.Token
		if token == "" && cc.TokenEnv != "" {
			token = os.Getenv(cc.TokenEnv)
		}
		if token == "" {
			logger.Warn().Str("credential", cc.Label).Msg("not configured, skipping")
			continue
		}
		creds = append(creds, domain.Credential{Label: cc.Label, Token: token})
	}
	if len(creds) == 0 {
		return nil, domain.ErrNoCredentials
	}
	return creds, nil
}
