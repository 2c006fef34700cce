package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the engine and provider knobs recognized by poiscan.
// Values come from defaults, then an optional poiscan.yaml, then POISCAN_*
// environment variables; command-line flags override on top.
type Settings struct {
	MinTileRadius    float64       `mapstructure:"min_tile_radius"` // meters
	MaxDepth         int           `mapstructure:"max_depth"`
	ProviderCapacity int           `mapstructure:"provider_capacity"`
	OverlapFactor    float64       `mapstructure:"overlap_factor"`
	MaxAPICalls      int           `mapstructure:"max_api_calls"` // per category group
	APITimeout       time.Duration `mapstructure:"api_timeout"`
	APIKey           string        `mapstructure:"api_key"`
	QPS              float64       `mapstructure:"qps"`
}

// Load reads settings from poiscan.yaml (current directory or
// $HOME/.config/poiscan) and the environment.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetDefault("min_tile_radius", 500.0)
	v.SetDefault("max_depth", 5)
	v.SetDefault("provider_capacity", 20)
	v.SetDefault("overlap_factor", 0.7)
	v.SetDefault("max_api_calls", 200)
	v.SetDefault("api_timeout", "10s")
	v.SetDefault("api_key", "")
	v.SetDefault("qps", 8.0)

	v.SetConfigName("poiscan")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/poiscan")
	v.SetEnvPrefix("POISCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if s.OverlapFactor <= 0 || s.OverlapFactor > 1 {
		return nil, fmt.Errorf("overlap_factor %.2f outside (0, 1]", s.OverlapFactor)
	}
	if s.MinTileRadius <= 0 {
		return nil, fmt.Errorf("min_tile_radius must be positive")
	}
	if s.MaxDepth <= 0 {
		return nil, fmt.Errorf("max_depth must be positive")
	}
	if s.MaxAPICalls <= 0 {
		return nil, fmt.Errorf("max_api_calls must be positive")
	}

	return &s, nil
}
