package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Game     GameConfig     `toml:"game"`
	Paths    PathsConfig    `toml:"paths"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Host          string        `toml:"host"`
	Port          int           `toml:"port"`
	WSPort        int           `toml:"ws_port"`
	SecretKey     string        `toml:"secret_key"`
	IdleTimeout   time.Duration `toml:"idle_timeout"`
	ShutdownGrace time.Duration `toml:"shutdown_grace"`
	OutQueueSize  int           `toml:"out_queue_size"`
}

// Addr is the TCP listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// WSAddr is the WebSocket (HTTP) listen address.
func (s ServerConfig) WSAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.WSPort))
}

type DatabaseConfig struct {
	// URL is a pgx connection string, or "memory" for the in-process store.
	URL             string        `toml:"url"`
	MaxConns        int           `toml:"max_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// InMemory reports whether the server runs without PostgreSQL.
func (d DatabaseConfig) InMemory() bool { return d.URL == "" || d.URL == "memory" }

type GameConfig struct {
	DefaultLocale string        `toml:"default_locale"`
	StartRoom     string        `toml:"start_room"`
	CombatTimeout time.Duration `toml:"combat_timeout"`
}

type PathsConfig struct {
	Data         string `toml:"data"`         // monsters.json, items.json, world.yaml
	Translations string `toml:"translations"` // <locale>.json catalogs
	Scripts      string `toml:"scripts"`      // Lua AI policies, optional
	LogDir       string `toml:"log_dir"`      // empty = stdout only
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load builds the effective configuration: defaults, then the optional
// TOML file, then environment variables. Environment always wins.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          4000,
			WSPort:        4001,
			IdleTimeout:   30 * time.Minute,
			ShutdownGrace: 5 * time.Second,
			OutQueueSize:  64,
		},
		Database: DatabaseConfig{
			URL:             "memory",
			MaxConns:        10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Game: GameConfig{
			DefaultLocale: "en",
			StartRoom:     "town_square",
			CombatTimeout: 60 * time.Second,
		},
		Paths: PathsConfig{
			Data:         "data",
			Translations: "translations",
			Scripts:      "scripts",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func applyEnv(cfg *Config) error {
	envStr("HOST", &cfg.Server.Host)
	envStr("SECRET_KEY", &cfg.Server.SecretKey)
	envStr("DATABASE_URL", &cfg.Database.URL)
	envStr("LOG_LEVEL", &cfg.Logging.Level)
	envStr("LOG_DIR", &cfg.Paths.LogDir)
	envStr("DEFAULT_LOCALE", &cfg.Game.DefaultLocale)
	envStr("DATA_DIR", &cfg.Paths.Data)
	envStr("TRANSLATIONS_DIR", &cfg.Paths.Translations)
	envStr("SCRIPTS_DIR", &cfg.Paths.Scripts)

	if err := envInt("PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := envInt("WS_PORT", &cfg.Server.WSPort); err != nil {
		return err
	}
	if err := envSeconds("IDLE_TIMEOUT_SEC", &cfg.Server.IdleTimeout); err != nil {
		return err
	}
	if err := envSeconds("COMBAT_TIMEOUT_SEC", &cfg.Game.CombatTimeout); err != nil {
		return err
	}
	return nil
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envSeconds(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*dst = time.Duration(n) * time.Second
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.WSPort < 1 || c.Server.WSPort > 65535 {
		return fmt.Errorf("websocket port %d out of range", c.Server.WSPort)
	}
	if c.Server.Port == c.Server.WSPort {
		return fmt.Errorf("tcp and websocket ports collide on %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	if c.Game.DefaultLocale == "" {
		return fmt.Errorf("default locale must not be empty")
	}
	if c.Server.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.Game.CombatTimeout <= 0 {
		return fmt.Errorf("combat timeout must be positive")
	}
	return nil
}
