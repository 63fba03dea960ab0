package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

// LoadSecrets reads an env file (KEY=VALUE per line) into a map without
// touching the process environment. An empty path is a no-op.
func LoadSecrets(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file %s: %w", path, err)
	}
	return vals, nil
}
