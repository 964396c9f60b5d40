package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "voxchat", "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "voxchat", "config.jsonc"), nil
}
