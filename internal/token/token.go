// Package token manages the process-global shared bearer token exchanged
// between the server and its agents (header X-REKCOD-TOKEN).
package token

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileConfig is the on-disk shape of <config>/rekcod.json.
type FileConfig struct {
	Host  string `json:"host"`
	Token string `json:"token"`
}

// BootstrapServer reads <configDir>/rekcod.json if present; otherwise it
// generates a fresh UUIDv4 token, persists the file, and returns it. Once
// set for a process the token never changes.
func BootstrapServer(configDir, host string) (string, error) {
	path := filepath.Join(configDir, "rekcod.json")

	if data, err := os.ReadFile(path); err == nil {
		var cfg FileConfig
		if jsonErr := json.Unmarshal(data, &cfg); jsonErr == nil && cfg.Token != "" {
			return cfg.Token, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read rekcod.json: %w", err)
	}

	newToken := uuid.New().String()
	cfg := FileConfig{Host: host, Token: newToken}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal rekcod.json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write rekcod.json: %w", err)
	}

	return newToken, nil
}
