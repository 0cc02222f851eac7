package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (snapshot.url -> TRIVIA_SNAPSHOT_URL).
const EnvPrefix = "TRIVIA"

// ViperSettings exposes a viper instance as a SettingsGetter.
type ViperSettings struct {
	v *viper.Viper
}

// NewViper returns a viper instance wired for TRIVIA_* environment overrides.
// When configFile is non-empty it is read as well; a missing file is an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile == "" {
		return v, nil
	}

	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file %s not found: %w", configFile, err)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}
	return v, nil
}

// NewViperSettings wraps v.
func NewViperSettings(v *viper.Viper) *ViperSettings {
	return &ViperSettings{v: v}
}

// GetSetting implements SettingsGetter. Keys with no value, flag default or
// environment override yield an empty string.
func (s *ViperSettings) GetSetting(key string) (string, error) {
	if s.v == nil {
		return "", nil
	}
	return s.v.GetString(key), nil
}
