package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvFiles lists the .env files LoadEnv reads, most specific first: the
// working directory, then ~/.config/howl/.env.
func EnvFiles() []string {
	files := []string{".env"}
	if dir, err := Dir(); err == nil {
		files = append(files, filepath.Join(dir, ".env"))
	}
	return files
}

// LoadEnv loads secrets from whichever of paths exist. Variables already set
// in the environment win, and the earlier file wins over later ones.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// SaveSecret sets key in the .env file at path, keeping any other entries.
func SaveSecret(path, key, value string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		env = existing
	}
	env[key] = value
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
