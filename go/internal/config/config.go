package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/roast-arena/go/internal/dbconfig"
	"gopkg.in/yaml.v3"
)

// Config is the full client configuration. Fields come from an optional YAML file and are
// then overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Channel   ChannelConfig   `yaml:"channel"`
	Game      GameConfig      `yaml:"game"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Inspector InspectorConfig `yaml:"inspector"`
	NATS      NATSConfig      `yaml:"nats"`
	Archive   ArchiveConfig   `yaml:"archive"`
	TUI       TUIConfig       `yaml:"tui"`
	Log       LogConfig       `yaml:"log"`
}

type APIConfig struct {
	URL      string        `yaml:"url"`
	ClientID string        `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ChannelConfig struct {
	URL           string        `yaml:"url"`
	ReconnectBase time.Duration `yaml:"reconnect_base"`
	ReconnectMax  time.Duration `yaml:"reconnect_max"`
	MaxAttempts   int           `yaml:"max_attempts"`
	PingInterval  time.Duration `yaml:"ping_interval"`
}

// GameConfig holds the round lifecycle tuning
type GameConfig struct {
	TreasuryAddress      string        `yaml:"treasury_address"`
	EntryFee             float64       `yaml:"entry_fee"`
	DriftTolerance       int           `yaml:"drift_tolerance"`
	ResultsLock          time.Duration `yaml:"results_lock"`
	NextRoundCountdown   time.Duration `yaml:"next_round_countdown"`
	VotingLockThreshold  int           `yaml:"voting_lock_threshold"`
	SpamWindow           time.Duration `yaml:"spam_window"`
	LegacyResultFallback bool          `yaml:"legacy_result_fallback"`
	RoundDebounce        time.Duration `yaml:"round_debounce"`
	StatsDebounce        time.Duration `yaml:"stats_debounce"`
	VotingDebounce       time.Duration `yaml:"voting_debounce"`
	PollInterval         time.Duration `yaml:"poll_interval"`
}

type WalletConfig struct {
	Address string `yaml:"address"`
}

type InspectorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Stream  string `yaml:"stream"`
}

type ArchiveConfig struct {
	Enabled bool            `yaml:"enabled"`
	DB      dbconfig.Config `yaml:"db"`
}

type TUIConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when neither a file nor the environment say otherwise.
func Default() Config {
	return Config{
		API: APIConfig{
			URL:     "http://localhost:3001/api",
			Timeout: 10 * time.Second,
		},
		Channel: ChannelConfig{
			URL:           "ws://localhost:3001/ws",
			ReconnectBase: time.Second,
			ReconnectMax:  30 * time.Second,
			MaxAttempts:   5,
			PingInterval:  25 * time.Second,
		},
		Game: GameConfig{
			EntryFee:            0.025,
			DriftTolerance:      2,
			ResultsLock:         20 * time.Second,
			NextRoundCountdown:  30 * time.Second,
			VotingLockThreshold: 10,
			SpamWindow:          3 * time.Second,
			RoundDebounce:       2 * time.Second,
			StatsDebounce:       5 * time.Second,
			VotingDebounce:      5 * time.Second,
			PollInterval:        10 * time.Second,
		},
		Inspector: InspectorConfig{
			Enabled: true,
			Addr:    ":8090",
		},
		NATS: NATSConfig{
			Subject: "arena.lifecycle",
			Stream:  "ARENA_LIFECYCLE",
		},
		Archive: ArchiveConfig{
			DB: dbconfig.Default(),
		},
		Log: LogConfig{
			Level: "info",
			File:  "roast-arena.log",
		},
	}
}

// Load reads path when it is non-empty, applies environment overrides and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.URL) == "" {
		errs = append(errs, errors.New("api url is required"))
	}
	if strings.TrimSpace(c.Channel.URL) == "" {
		errs = append(errs, errors.New("channel url is required"))
	}
	if c.Game.EntryFee <= 0 {
		errs = append(errs, fmt.Errorf("entry fee must be positive, got %v", c.Game.EntryFee))
	}
	if c.Channel.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("channel max attempts must be positive, got %d", c.Channel.MaxAttempts))
	}
	if c.Archive.Enabled && c.Archive.DB.Host == "" {
		errs = append(errs, errors.New("archive enabled without a database host"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) applyEnv() {
	c.API.URL = getEnv("ARENA_API_URL", c.API.URL)
	c.API.ClientID = getEnv("ARENA_CLIENT_ID", c.API.ClientID)
	c.API.Timeout = getEnvAsDuration("ARENA_API_TIMEOUT", c.API.Timeout)

	c.Channel.URL = getEnv("ARENA_WS_URL", c.Channel.URL)
	c.Channel.MaxAttempts = getEnvAsInt("ARENA_WS_MAX_ATTEMPTS", c.Channel.MaxAttempts)

	c.Game.TreasuryAddress = getEnv("TREASURY_ADDRESS", c.Game.TreasuryAddress)
	c.Game.EntryFee = getEnvAsFloat("ENTRY_FEE", c.Game.EntryFee)
	c.Game.LegacyResultFallback = getEnvAsBool("LEGACY_RESULT_FALLBACK", c.Game.LegacyResultFallback)

	c.Wallet.Address = getEnv("WALLET_ADDRESS", c.Wallet.Address)

	c.Inspector.Enabled = getEnvAsBool("INSPECTOR_ENABLED", c.Inspector.Enabled)
	c.Inspector.Addr = getEnv("INSPECTOR_ADDR", c.Inspector.Addr)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("NATS_SUBJECT", c.NATS.Subject)
	c.NATS.Stream = getEnv("NATS_STREAM", c.NATS.Stream)

	c.Archive.Enabled = getEnvAsBool("ARCHIVE_ENABLED", c.Archive.Enabled)
	c.Archive.DB = c.Archive.DB.WithEnv()

	c.TUI.Enabled = getEnvAsBool("TUI_ENABLED", c.TUI.Enabled)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
