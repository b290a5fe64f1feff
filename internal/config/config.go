// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Gitea struct {
		Server     string `mapstructure:"server"`
		Token      string `mapstructure:"token"`
		Username   string `mapstructure:"username"`
		Password   string `mapstructure:"password"`
		CatalogOrg string `mapstructure:"catalog_org"`
	} `mapstructure:"gitea"`

	Cache struct {
		MaxAge          time.Duration `mapstructure:"max_age"`
		LRUSize         int           `mapstructure:"lru_size"`
		Persistent      bool          `mapstructure:"persistent"`
		CompressMinSize int           `mapstructure:"compress_min_size"`
	} `mapstructure:"cache"`

	Environment string `mapstructure:"environment"` // development, production
	LogLevel    string `mapstructure:"log_level"`   // debug, info, warn, error
}

const envPrefix = "GITEAKIT"

func Default() *Config {
	var cfg Config
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 7480
	cfg.Database.Path = defaultDatabasePath()
	cfg.Gitea.Server = "https://git.door43.org"
	cfg.Cache.MaxAge = time.Second
	cfg.Cache.LRUSize = 512
	cfg.Cache.Persistent = true
	cfg.Cache.CompressMinSize = 1024
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	return &cfg
}

// Path returns the config file named by GITEAKIT_CONFIG, or
// config/config.<env>.json with env taken from GITEAKIT_ENV.
func Path() string {
	if p := os.Getenv(envPrefix + "_CONFIG"); p != "" {
		return p
	}
	env := os.Getenv(envPrefix + "_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads path (json, yaml or toml by extension) on top of the
// defaults. GITEAKIT_* variables override file values, e.g.
// GITEAKIT_GITEA_TOKEN. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gitea.Server) == "" {
		return fmt.Errorf("gitea.server is required")
	}
	if c.Cache.MaxAge < 0 {
		return fmt.Errorf("cache.max_age cannot be negative")
	}
	if c.Cache.LRUSize <= 0 {
		return fmt.Errorf("cache.lru_size must be positive")
	}
	return nil
}

// Addr is the listen address of the session service.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// viper only consults the environment for keys it already knows about,
// so every key gets a default.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("gitea.server", d.Gitea.Server)
	v.SetDefault("gitea.token", d.Gitea.Token)
	v.SetDefault("gitea.username", d.Gitea.Username)
	v.SetDefault("gitea.password", d.Gitea.Password)
	v.SetDefault("gitea.catalog_org", d.Gitea.CatalogOrg)
	v.SetDefault("cache.max_age", d.Cache.MaxAge)
	v.SetDefault("cache.lru_size", d.Cache.LRUSize)
	v.SetDefault("cache.persistent", d.Cache.Persistent)
	v.SetDefault("cache.compress_min_size", d.Cache.CompressMinSize)
	v.SetDefault("environment", d.Environment)
	v.SetDefault("log_level", d.LogLevel)
}

func defaultDatabasePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".giteakit"
	}
	return dir + string(os.PathSeparator) + "giteakit"
}
