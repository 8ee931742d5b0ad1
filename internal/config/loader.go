package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"webauth/pkg/logging"
)

const (
	userConfigDir  = ".config/webauth"
	configFileName = "config.yaml"
)

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// DefaultConfigPath returns ~/.config/webauth/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// LoadConfig loads the configuration file at path over the defaults. A
// missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	config := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config file found at %s, using defaults", path)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config from %s: %s", path, err)
		return Config{}, NewConfigurationErrorWithDetails(path, "io", "cannot read configuration file", err.Error(),
			[]string{"Check that the file exists and is readable"})
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		cfgErr := NewConfigurationErrorWithDetails(path, "parse", "malformed configuration file", err.Error(),
			[]string{"Check the YAML syntax and the field types"})
		if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
			cfgErr.LineNumber, _ = strconv.Atoi(m[1])
		}
		return Config{}, cfgErr
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	return config, nil
}
