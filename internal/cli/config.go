package cli

import (
	"os"
	"path/filepath"

	"github.com/tansive/reportformatsrv/internal/reportformats/config"
)

// DefaultConfigFile is the name of the config file in the user config
// directory.
const DefaultConfigFile = config.DefaultConfigFile

// ConfigEnv names a config file that takes precedence over the default
// location.
const ConfigEnv = "REPORTFORMATS_CONFIG"

// GetDefaultConfigPath returns the config file to load when --config is not
// given: $REPORTFORMATS_CONFIG, then the file in the user config directory
// if it exists. An empty result loads the built-in defaults.
func GetDefaultConfigPath() string {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(configDir, "reportformats", DefaultConfigFile)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
