package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override the [lrs] section.
const (
	EnvBaseURL  = "LRSDASH_BASE_URL"
	EnvUsername = "LRSDASH_USERNAME"
	EnvPassword = "LRSDASH_PASSWORD"
)

// LoadEnvFiles loads .env files into the process environment. Missing files
// are skipped and variables already set are kept.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides LRS connection settings with non-empty environment values.
func ApplyEnv(cfg *FileConfig) {
	for name, target := range map[string]**string{
		EnvBaseURL:  &cfg.LRS.BaseURL,
		EnvUsername: &cfg.LRS.Username,
		EnvPassword: &cfg.LRS.Password,
	} {
		if v := os.Getenv(name); v != "" {
			*target = &v
		}
	}
}
