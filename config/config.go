package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the deep search service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Search    SearchConfig    `mapstructure:"search"`
	AI        AIConfig        `mapstructure:"ai"`
	Session   SessionConfig   `mapstructure:"session"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	StreamEnabled  bool          `mapstructure:"stream_enabled"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SearchConfig describes the SearXNG backend and per-round result limits.
type SearchConfig struct {
	SearxURL       string        `mapstructure:"searx_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	InitialLimit   int           `mapstructure:"initial_limit"`
	FollowupLimit  int           `mapstructure:"followup_limit"`
	QuickLimit     int           `mapstructure:"quick_limit"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
}

// AIConfig describes the OpenAI-compatible completion backend.
type AIConfig struct {
	URL                string        `mapstructure:"url"`
	Model              string        `mapstructure:"model"`
	Temperature        float64       `mapstructure:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SystemPromptPrefix string        `mapstructure:"system_prompt_prefix"`
}

// SessionConfig bounds the adaptive search loop.
type SessionConfig struct {
	DefaultMaxDepth int `mapstructure:"default_max_depth"`
	MinMaxDepth     int `mapstructure:"min_max_depth"`
	MaxMaxDepth     int `mapstructure:"max_max_depth"`
}

// BreakerConfig configures the circuit breakers around backend calls.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Interval    time.Duration `mapstructure:"interval"`
}

// FetchConfig controls optional page enrichment of thin search snippets.
type FetchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Type     string        `mapstructure:"type"` // http or chromedp
	TopK     int           `mapstructure:"top_k"`
	MaxChars int           `mapstructure:"max_chars"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig contains metrics and tracing settings
type TelemetryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Namespace     string `mapstructure:"namespace"`
	TraceExporter string `mapstructure:"trace_exporter"` // none, stdout or otlp
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	StreamMaxLen int64         `mapstructure:"stream_max_len"`
	StreamTTL    time.Duration `mapstructure:"stream_ttl"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	port := strings.TrimSpace(r.Port)
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", strings.TrimSpace(r.Host), port)
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Enabled reports whether the session archive should be used.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN builds the connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) == "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when host is provided")
	}
	return nil
}

// Normalize lowercases the log level and defaults it to info.
func (g GeneralConfig) Normalize() GeneralConfig {
	g.LogLevel = strings.ToLower(strings.TrimSpace(g.LogLevel))
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	return g
}

func (g GeneralConfig) Validate() error {
	switch g.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("general.log_level must be one of debug, info, warn, error (got %q)", g.LogLevel)
}

// DebugEnabled reports whether prompt and payload dumps should be logged.
func (g GeneralConfig) DebugEnabled() bool {
	return g.Debug || strings.EqualFold(g.LogLevel, "debug")
}

// Normalize fills unset search values.
func (s SearchConfig) Normalize() SearchConfig {
	s.SearxURL = strings.TrimRight(strings.TrimSpace(s.SearxURL), "/")
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}
	if s.Timeout <= 0 {
		s.Timeout = 15 * time.Second
	}
	if s.InitialLimit <= 0 {
		s.InitialLimit = 8
	}
	if s.FollowupLimit <= 0 {
		s.FollowupLimit = 6
	}
	if s.QuickLimit <= 0 {
		s.QuickLimit = 3
	}
	if s.RateLimitDelay < 0 {
		s.RateLimitDelay = 0
	}
	return s
}

func (s SearchConfig) Validate() error {
	if s.SearxURL == "" {
		return fmt.Errorf("search.searx_url is required")
	}
	if _, err := url.ParseRequestURI(s.SearxURL); err != nil {
		return fmt.Errorf("search.searx_url: %w", err)
	}
	return nil
}

// Normalize fills unset AI values.
func (a AIConfig) Normalize() AIConfig {
	a.URL = strings.TrimRight(strings.TrimSpace(a.URL), "/")
	if a.Model == "" {
		a.Model = DefaultModel
	}
	if a.Timeout <= 0 {
		a.Timeout = 60 * time.Second
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = -1
	}
	return a
}

func (a AIConfig) Validate() error {
	if a.URL == "" {
		return fmt.Errorf("ai.url is required")
	}
	if _, err := url.ParseRequestURI(a.URL); err != nil {
		return fmt.Errorf("ai.url: %w", err)
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be within [0,2]")
	}
	return nil
}

func (s SessionConfig) Validate() error {
	if s.MinMaxDepth < 1 || s.MaxMaxDepth < s.MinMaxDepth {
		return fmt.Errorf("session depth bounds invalid: [%d,%d]", s.MinMaxDepth, s.MaxMaxDepth)
	}
	if s.DefaultMaxDepth < s.MinMaxDepth || s.DefaultMaxDepth > s.MaxMaxDepth {
		return fmt.Errorf("session.default_max_depth must be within [%d,%d]", s.MinMaxDepth, s.MaxMaxDepth)
	}
	return nil
}

// Normalize applies defaults for fetch settings.
func (f FetchConfig) Normalize() FetchConfig {
	f.Type = strings.ToLower(strings.TrimSpace(f.Type))
	if f.Type == "" {
		f.Type = "http"
	}
	if f.TopK <= 0 {
		f.TopK = 3
	}
	if f.MaxChars <= 0 {
		f.MaxChars = 2000
	}
	if f.Timeout <= 0 {
		f.Timeout = 10 * time.Second
	}
	return f
}

func (f FetchConfig) Validate() error {
	switch f.Type {
	case "http", "chromedp":
		return nil
	default:
		return fmt.Errorf("fetch.type must be http or chromedp, got %q", f.Type)
	}
}

const (
	DefaultSearxURL  = "http://localhost:8080"
	DefaultAIURL     = "http://localhost:1234"
	DefaultModel     = "qwen/qwen3-30b-a3b-2507"
	DefaultUserAgent = "Mozilla/5.0 (compatible; DeepSearchBot/1.0)"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.stream_enabled", true)
	v.SetDefault("server.request_timeout", 10*time.Minute)
	v.SetDefault("search.searx_url", DefaultSearxURL)
	v.SetDefault("search.user_agent", DefaultUserAgent)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.initial_limit", 8)
	v.SetDefault("search.followup_limit", 6)
	v.SetDefault("search.quick_limit", 3)
	v.SetDefault("search.rate_limit_delay", time.Second)
	v.SetDefault("ai.url", DefaultAIURL)
	v.SetDefault("ai.model", DefaultModel)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.max_tokens", -1)
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("session.default_max_depth", 5)
	v.SetDefault("session.min_max_depth", 2)
	v.SetDefault("session.max_max_depth", 8)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("fetch.enabled", false)
	v.SetDefault("fetch.type", "http")
	v.SetDefault("fetch.top_k", 3)
	v.SetDefault("fetch.max_chars", 2000)
	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.namespace", "deepsearch")
	v.SetDefault("telemetry.trace_exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.stream_max_len", 500)
	v.SetDefault("storage.redis.stream_ttl", time.Hour)
	v.SetDefault("storage.postgres.sslmode", "disable")
}

// LoadConfig loads config from file and DEEPSEARCH_* environment variables.
// A missing config file is not an error when no explicit path was given.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("DEEPSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.General = cfg.General.Normalize()
	cfg.Search = cfg.Search.Normalize()
	cfg.AI = cfg.AI.Normalize()
	cfg.Fetch = cfg.Fetch.Normalize()

	for _, validate := range []func() error{
		cfg.General.Validate,
		cfg.Search.Validate,
		cfg.AI.Validate,
		cfg.Session.Validate,
		cfg.Fetch.Validate,
		cfg.Storage.Postgres.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
