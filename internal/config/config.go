package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for PocketChat
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Client  ClientConfig  `mapstructure:"client"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Sim     SimConfig     `mapstructure:"sim"`
	Debug   bool          `mapstructure:"debug"`
}

// APIConfig holds chat API connection configuration
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Key     string        `mapstructure:"key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds local persistence configuration
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	Prefix  string `mapstructure:"prefix"`
}

// ClientConfig holds extra request headers and body parameters the
// host wants forwarded verbatim on every chat request
type ClientConfig struct {
	Headers map[string]string `mapstructure:"headers"`
	Params  map[string]any    `mapstructure:"params"`
}

// CatalogConfig holds the product catalog location
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// SimConfig holds the assistant simulator configuration
type SimConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Dialect     string `mapstructure:"dialect"`
	Suggestions string `mapstructure:"suggestions"`
	APIKey      string `mapstructure:"api_key"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("POCKETCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.url", "http://localhost:8080/api/chat")
	v.SetDefault("api.key", "")
	v.SetDefault("api.timeout", time.Duration(0))

	v.SetDefault("storage.backend", "bolt")
	v.SetDefault("storage.path", "./data/pocketchat.db")
	v.SetDefault("storage.prefix", "pocketchat")

	v.SetDefault("client.headers", map[string]string{})
	v.SetDefault("client.params", map[string]any{})

	v.SetDefault("catalog.path", "")

	v.SetDefault("sim.host", "0.0.0.0")
	v.SetDefault("sim.port", 8080)
	v.SetDefault("sim.dialect", "data")
	v.SetDefault("sim.suggestions", "frames")
	v.SetDefault("sim.api_key", "")

	v.SetDefault("debug", false)
}

// SimAddress returns the simulator's listen address
func (c *Config) SimAddress() string {
	return fmt.Sprintf("%s:%d", c.Sim.Host, c.Sim.Port)
}
