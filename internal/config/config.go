// Package config loads runtime settings from defaults, an optional config file,
// a .env file and GOCATALOG_* environment variables, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/alvarorichard/gocatalog/internal/extractor"
)

// EnvPrefix is prepended to every environment override (GOCATALOG_DB_PATH, ...)
const EnvPrefix = "GOCATALOG"

// Config is the typed view over the viper settings
type Config struct {
	Debug    bool           `mapstructure:"debug"`
	DB       DBConfig       `mapstructure:"db"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Security SecurityConfig `mapstructure:"security"`
	TMDB     APIKeyConfig   `mapstructure:"tmdb"`
	OMDb     APIKeyConfig   `mapstructure:"omdb"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	Burst         int           `mapstructure:"burst"`
	SourcesTTL    time.Duration `mapstructure:"sources_ttl"`
}

type BrowserConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Headless bool `mapstructure:"headless"`
	Install  bool `mapstructure:"install"`
}

type ExtractConfig struct {
	TargetLang     string           `mapstructure:"target_lang"`
	Parallel       bool             `mapstructure:"parallel"`
	MaxWorkers     int              `mapstructure:"max_workers"`
	Timeout        time.Duration    `mapstructure:"timeout"`
	BrowserTimeout time.Duration    `mapstructure:"browser_timeout"`
	Browser        BrowserConfig    `mapstructure:"browser"`
	Providers      []extractor.Spec `mapstructure:"providers"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

type SecurityConfig struct {
	ReputationTTL       time.Duration `mapstructure:"reputation_ttl"`
	URLhausKey          string        `mapstructure:"urlhaus_key"`
	VirusTotalKey       string        `mapstructure:"virustotal_key"`
	VirusTotalPerMinute int           `mapstructure:"virustotal_per_minute"`
}

type APIKeyConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// defaultDBPath mirrors the ~/.local/<app> data directory convention
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gocatalog.db"
	}
	return filepath.Join(home, ".local", "gocatalog", "catalog.db")
}

// Defaults lists every key with its factory value
func Defaults() map[string]any {
	return map[string]any{
		"debug":                          false,
		"db.path":                        defaultDBPath(),
		"log.file":                       "",
		"log.max_size_mb":                20,
		"log.max_backups":                3,
		"server.addr":                    ":8085",
		"server.rate_per_minute":         120,
		"server.burst":                   20,
		"server.sources_ttl":             5 * time.Minute,
		"extract.target_lang":            "en",
		"extract.parallel":               false,
		"extract.max_workers":            4,
		"extract.timeout":                extractor.DefaultTimeout,
		"extract.browser_timeout":        extractor.DefaultBrowserTimeout,
		"extract.browser.enabled":        false,
		"extract.browser.headless":       true,
		"extract.browser.install":        false,
		"breaker.failure_threshold":      5,
		"breaker.success_threshold":      2,
		"breaker.timeout":                60 * time.Second,
		"retry.max_attempts":             3,
		"retry.initial_delay":            500 * time.Millisecond,
		"retry.multiplier":               2.0,
		"retry.max_delay":                10 * time.Second,
		"security.reputation_ttl":        24 * time.Hour,
		"security.urlhaus_key":           "",
		"security.virustotal_key":        "",
		"security.virustotal_per_minute": 4,
		"tmdb.api_key":                   "",
		"omdb.api_key":                   "",
	}
}

// Load reads configuration. An empty path searches ./gocatalog.* and
// $HOME/.config/gocatalog/gocatalog.*; a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrap(err, "config file")
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gocatalog")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "gocatalog"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	// The well-known provider keys are also accepted without the prefix.
	for key, env := range map[string]string{
		"tmdb.api_key":            "TMDB_API_KEY",
		"omdb.api_key":            "OMDB_API_KEY",
		"security.virustotal_key": "VIRUSTOTAL_API_KEY",
		"security.urlhaus_key":    "URLHAUS_AUTH_KEY",
	} {
		if v.GetString(key) == "" {
			if val := os.Getenv(env); val != "" {
				v.Set(key, val)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}
