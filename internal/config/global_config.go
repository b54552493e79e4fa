package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrConfigExists is returned by InitConfigFile when the file is present and
// overwriting was not requested.
var ErrConfigExists = errors.New("config file already exists")

// UserConfigPath returns ~/.config/jvmdiag/config.yaml.
func UserConfigPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// InitConfigFile writes DefaultConfigYAML to path. An existing file is only
// replaced when force is set.
func InitConfigFile(path string, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking config: %w", err)
	}

	if err := AtomicWrite(path, []byte(DefaultConfigYAML)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
