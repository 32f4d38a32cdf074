package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "CALLOUT"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
	History  HistoryConfig  `mapstructure:"history"`
	Log      LogConfig      `mapstructure:"log"`
	Cards    []CardConfig   `mapstructure:"cards"`
}

type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
	RPCAddress  string `mapstructure:"rpc_address"`
	// PublicURL is the externally visible base URL used in QR join links.
	// When empty the request's Host header is used.
	PublicURL string `mapstructure:"public_url"`
}

type GameConfig struct {
	HandSize       int           `mapstructure:"hand_size"`
	MinPlayers     int           `mapstructure:"min_players"`
	ScoreAward     int           `mapstructure:"score_award"`
	ResponseWindow time.Duration `mapstructure:"response_window"`
	VotingWindow   time.Duration `mapstructure:"voting_window"`
	RoomIdleTTL    time.Duration `mapstructure:"room_idle_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type DatabaseConfig struct {
	// Driver selects the history store: "memory" (the default when empty),
	// "gorm" or "postgres".
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type HistoryConfig struct {
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	QueueName string `mapstructure:"queue_name"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type CardConfig struct {
	ID   string `mapstructure:"id"`
	Text string `mapstructure:"text"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", "")
	v.SetDefault("server.public_url", "")

	v.SetDefault("game.hand_size", 5)
	v.SetDefault("game.min_players", 2)
	v.SetDefault("game.score_award", 1)
	v.SetDefault("game.response_window", 30*time.Second)
	v.SetDefault("game.voting_window", 20*time.Second)
	v.SetDefault("game.room_idle_ttl", 10*time.Minute)
	v.SetDefault("game.sweep_interval", time.Minute)

	v.SetDefault("database.driver", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "callout")

	v.SetDefault("history.redis_addr", "")
	v.SetDefault("history.redis_db", 0)
	v.SetDefault("history.queue_name", "callout_challenges")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads config.yaml from path (if present) and the environment into a Config.
// v may already carry bound command-line flags.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads configuration using a fresh viper instance.
func LoadConfig(path string) (*Config, error) {
	return Load(viper.New(), path)
}

func (c *Config) Validate() error {
	g := c.Game
	if g.HandSize < 1 {
		return fmt.Errorf("game.hand_size must be positive, got %d", g.HandSize)
	}
	if g.MinPlayers < 2 {
		return fmt.Errorf("game.min_players must be at least 2, got %d", g.MinPlayers)
	}
	if g.ResponseWindow <= 0 || g.VotingWindow <= 0 {
		return errors.New("game.response_window and game.voting_window must be positive")
	}
	switch c.Database.Driver {
	case "", "memory", "gorm", "postgres":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if len(c.Cards) > 0 && len(c.Cards) < g.HandSize {
		return fmt.Errorf("card list has %d cards, fewer than game.hand_size %d", len(c.Cards), g.HandSize)
	}
	return nil
}
