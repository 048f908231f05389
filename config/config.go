package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FOOSREF"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Giphy    GiphyConfig    `mapstructure:"giphy"`
	Nag      NagConfig      `mapstructure:"nag"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Users    []UserConfig   `mapstructure:"users"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	BotID          string        `mapstructure:"bot_id"`
	BotName        string        `mapstructure:"bot_name"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"` // 0 disables idle disconnects
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type GiphyConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	Limit        int           `mapstructure:"limit"`
	MaxSizeBytes int           `mapstructure:"max_size_bytes"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// NagConfig 催促消息配置
type NagConfig struct {
	MinDelay     time.Duration `mapstructure:"min_delay"`
	Scope        string        `mapstructure:"scope"` // channel | global
	MessagesFile string        `mapstructure:"messages_file"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // memory | gorm | postgres
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// UserConfig seeds the user directory before anyone connects.
type UserConfig struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	RealName string `mapstructure:"real_name"`
	IsBot    bool   `mapstructure:"is_bot"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"http":        "server.http_address",
	"rpc":         "server.rpc_address",
	"metrics":     "server.metrics_address",
	"log-level":   "log.level",
	"storage":     "storage.driver",
	"giphy-key":   "giphy.api_key",
	"nag-scope":   "nag.scope",
	"nag-delay":   "nag.min_delay",
	"development": "log.development",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.metrics_address", ":9100")
	v.SetDefault("server.bot_id", "UFOOSREF")
	v.SetDefault("server.bot_name", "foosref")
	v.SetDefault("server.heartbeat", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("giphy.api_key", "")
	v.SetDefault("giphy.endpoint", "https://api.giphy.com/v1/gifs/search")
	v.SetDefault("giphy.limit", 40)
	v.SetDefault("giphy.max_size_bytes", 2000000)
	v.SetDefault("giphy.timeout", 10*time.Second)
	v.SetDefault("nag.min_delay", 45*time.Minute)
	v.SetDefault("nag.scope", "channel")
	v.SetDefault("nag.messages_file", "")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "foosref")
}

// LoadConfig reads config.yaml from path (a directory or a file), the
// FOOSREF_* environment and any flags that were set. A missing config file
// is not an error.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Nag.Scope {
	case "channel", "global":
	default:
		return fmt.Errorf("invalid nag.scope %q (must be channel or global)", c.Nag.Scope)
	}
	switch c.Storage.Driver {
	case "memory", "gorm", "postgres":
	default:
		return fmt.Errorf("invalid storage.driver %q", c.Storage.Driver)
	}
	if c.Nag.MinDelay <= 0 {
		return errors.New("nag.min_delay must be positive")
	}
	return nil
}
