package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Settings are the application settings shared by every command. They come
// from railsim.yaml, RAILSIM_* environment variables and command flags, in
// increasing precedence.
type Settings struct {
	DataDir       string `mapstructure:"data_dir"`
	LogLevel      string `mapstructure:"log_level"`
	LogJSON       bool   `mapstructure:"log_json"`
	ParallelDepth int    `mapstructure:"parallel_depth"`
	Progress      bool   `mapstructure:"progress"`
}

// NewViper returns a viper instance with the defaults and search paths set.
// configDir is searched in addition to the working directory and the user
// config directory; it may be empty.
func NewViper(configDir string) *viper.Viper {
	v := viper.New()
	v.SetDefault("data_dir", "data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("parallel_depth", 0)
	v.SetDefault("progress", true)

	v.SetConfigName("railsim")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(".")
	if home, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, "railsim"))
	}

	v.SetEnvPrefix("RAILSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadSettings reads the settings file if there is one and decodes the
// merged settings.
func ReadSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return s, fmt.Errorf("error reading settings: %w", err)
		}
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("error decoding settings: %w", err)
	}
	if s.ParallelDepth < 0 {
		return s, fmt.Errorf("parallel_depth must not be negative, got %d", s.ParallelDepth)
	}
	return s, nil
}
