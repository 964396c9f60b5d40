package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPaths lists the dotenv files consulted for a config path, most specific first.
func EnvPaths(configPath string) []string {
	paths := []string{".env"}
	if strings.TrimSpace(configPath) != "" {
		paths = append(paths, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	return paths
}

// LoadEnv loads the dotenv files that exist into the process environment.
// Variables already present in the environment are left untouched.
func LoadEnv(paths ...string) ([]string, error) {
	loaded := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat env file %q: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("load env file %q: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// SecretsFromEnv reads credentials from getenv.
func SecretsFromEnv(getenv func(string) string) Secrets {
	anthropicKey := strings.TrimSpace(getenv("ANTHROPIC_API_KEY"))
	if anthropicKey == "" {
		anthropicKey = strings.TrimSpace(getenv("CLAUDE_API_KEY"))
	}
	return Secrets{
		AnthropicAPIKey:   anthropicKey,
		OpenAIAPIKey:      strings.TrimSpace(getenv("OPENAI_API_KEY")),
		SheetsID:          strings.TrimSpace(getenv("GOOGLE_SHEETS_ID")),
		SheetsCredentials: strings.TrimSpace(getenv("GOOGLE_SHEETS_CREDENTIALS")),
		ProxyURL:          strings.TrimSpace(getenv("VOXCHAT_PROXY_URL")),
	}
}

// applyEnv overlays environment secrets onto cfg.
func applyEnv(cfg *Config, getenv func(string) string) {
	cfg.Secrets = SecretsFromEnv(getenv)
	if cfg.Secrets.ProxyURL != "" {
		cfg.Client.ProxyURL = cfg.Secrets.ProxyURL
	}
}

// APIKey returns the secret for the configured completion provider.
func (c Config) APIKey() string {
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		return c.Secrets.OpenAIAPIKey
	case "echo":
		return ""
	default:
		return c.Secrets.AnthropicAPIKey
	}
}
