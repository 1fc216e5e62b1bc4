package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL     string
	WebsocketURL   string
	RequestTimeout time.Duration

	PollInterval      time.Duration
	FailureThreshold  int
	HintRatePerMinute int
	HintBurst         int

	ReconnectDelay    time.Duration
	ReconnectAttempts int

	SessionBackend string
	SessionPath    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKey       string

	JournalDSN  string
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads configuration from the environment (QUEUEHIVE_ prefix), an
// optional .env file in the working directory and an optional config file
// named by QUEUEHIVE_CONFIG.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("QUEUEHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("QUEUEHIVE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://localhost:8080/api")
	v.SetDefault("ws_url", "http://localhost:8080/ws")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("poll_interval", "10s")
	v.SetDefault("failure_threshold", 3)
	v.SetDefault("hint_rate_per_min", 30)
	v.SetDefault("hint_burst", 3)
	v.SetDefault("reconnect_delay", "5s")
	v.SetDefault("reconnect_attempts", 10)
	v.SetDefault("session_backend", "file")
	v.SetDefault("session_path", defaultSessionPath())
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_key", "queuehive:session")
	v.SetDefault("journal_dsn", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("metrics_addr", "")
}

func fromViper(v *viper.Viper) Config {
	return Config{
		APIBaseURL:        strings.TrimRight(v.GetString("api_url"), "/"),
		WebsocketURL:      strings.TrimRight(v.GetString("ws_url"), "/"),
		RequestTimeout:    v.GetDuration("request_timeout"),
		PollInterval:      v.GetDuration("poll_interval"),
		FailureThreshold:  v.GetInt("failure_threshold"),
		HintRatePerMinute: v.GetInt("hint_rate_per_min"),
		HintBurst:         v.GetInt("hint_burst"),
		ReconnectDelay:    v.GetDuration("reconnect_delay"),
		ReconnectAttempts: v.GetInt("reconnect_attempts"),
		SessionBackend:    strings.ToLower(v.GetString("session_backend")),
		SessionPath:       v.GetString("session_path"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPassword:     v.GetString("redis_password"),
		RedisDB:           v.GetInt("redis_db"),
		RedisKey:          v.GetString("redis_key"),
		JournalDSN:        v.GetString("journal_dsn"),
		LogLevel:          strings.ToLower(v.GetString("log_level")),
		LogFormat:         strings.ToLower(v.GetString("log_format")),
		MetricsAddr:       v.GetString("metrics_addr"),
	}
}

func (c Config) Validate() error {
	for name, raw := range map[string]string{"api_url": c.APIBaseURL, "ws_url": c.WebsocketURL} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("config %s: invalid url %q", name, raw)
		}
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config poll_interval must be positive")
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("config failure_threshold must be positive")
	}
	if c.ReconnectDelay < 0 || c.ReconnectAttempts < 0 {
		return fmt.Errorf("config reconnect settings must not be negative")
	}
	switch c.SessionBackend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("config session_backend %q: want file, redis or memory", c.SessionBackend)
	}
	return nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".queuehive-session.json"
	}
	return filepath.Join(dir, "queuehive", "session.json")
}
