package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"renal-risk-stream/internal/fusion"
	"renal-risk-stream/internal/logging"
	"renal-risk-stream/internal/risk"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Fusion     FusionConfig     `mapstructure:"fusion"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// StreamConfig sets the publish tick and per-signal refresh cadence.
type StreamConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	FastRefresh  time.Duration `mapstructure:"fast_refresh"`
	SlowRefresh  time.Duration `mapstructure:"slow_refresh"`
}

// RiskConfig selects the classification profile.
type RiskConfig struct {
	Profile string `mapstructure:"profile"`
}

// FusionConfig selects the fusion strategy.
type FusionConfig struct {
	Strategy string `mapstructure:"strategy"`
}

// SimulationConfig tunes the progression simulator.
type SimulationConfig struct {
	PhaseAngleMin float64 `mapstructure:"phase_angle_min"`
	PhaseAngleMax float64 `mapstructure:"phase_angle_max"`
	// Seed fixes the phase angle sequence when non-zero.
	Seed uint64 `mapstructure:"seed"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// RedisConfig covers the snapshot cache and the downstream feed.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	SnapshotTTL  time.Duration `mapstructure:"snapshot_ttl"`
	FeedStream   string        `mapstructure:"feed_stream"`
	FeedMaxLen   int64         `mapstructure:"feed_max_len"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	MinLevel string         `mapstructure:"min_level"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DispatchConfig bounds the collaborator fan-out queue.
type DispatchConfig struct {
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int           `mapstructure:"max_data_points"`
	Step          time.Duration `mapstructure:"step"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RENALWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "renalwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("stream.tick_interval", "1s")
	v.SetDefault("stream.fast_refresh", "3s")
	v.SetDefault("stream.slow_refresh", "15s")

	v.SetDefault("risk.profile", risk.FourLevel.Name())
	v.SetDefault("fusion.strategy", fusion.StrategyScore)

	v.SetDefault("simulation.phase_angle_min", 5.0)
	v.SetDefault("simulation.phase_angle_max", 7.5)
	v.SetDefault("simulation.seed", 0)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.ensure_schema", true)

	v.SetDefault("redis.key_prefix", "renalwatch")
	v.SetDefault("redis.snapshot_ttl", "10m")
	v.SetDefault("redis.feed_stream", "renalwatch:fusion")
	v.SetDefault("redis.feed_max_len", 10000)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_level", risk.Orange.String())
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("dispatch.queue_size", 256)
	v.SetDefault("dispatch.timeout", "5s")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.step", "1s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Stream.TickInterval <= 0 {
		return fmt.Errorf("stream.tick_interval must be greater than zero")
	}
	if c.Stream.FastRefresh <= 0 || c.Stream.SlowRefresh <= 0 {
		return fmt.Errorf("stream refresh cadences must be greater than zero")
	}
	if _, err := risk.ProfileByName(c.Risk.Profile); err != nil {
		return fmt.Errorf("risk.profile: %w", err)
	}
	if _, err := fusion.ByName(c.Fusion.Strategy); err != nil {
		return fmt.Errorf("fusion.strategy: %w", err)
	}
	if c.Simulation.PhaseAngleMax <= c.Simulation.PhaseAngleMin {
		return fmt.Errorf("simulation.phase_angle_max must exceed phase_angle_min")
	}
	if c.Dispatch.QueueSize <= 0 {
		return fmt.Errorf("dispatch.queue_size must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Export.Step <= 0 {
		return fmt.Errorf("export.step must be greater than zero")
	}
	if _, err := risk.ParseLevel(c.Alerting.MinLevel); err != nil {
		return fmt.Errorf("alerting.min_level: %w", err)
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// AlertMinLevel returns the parsed alerting threshold.
func (c *Config) AlertMinLevel() risk.Level {
	l, err := risk.ParseLevel(c.Alerting.MinLevel)
	if err != nil {
		return risk.Orange
	}
	return l
}
