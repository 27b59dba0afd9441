// API key storage. Lookup order:
//  1. LOCALEHERO_API_KEY environment variable
//  2. $XDG_CONFIG_HOME/localehero/credentials.yaml (default
//     ~/.config/localehero/credentials.yaml), permissions 0600.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configDirName   = "localehero"
	credentialsFile = "credentials.yaml"
	apiKeyEnv       = "LOCALEHERO_API_KEY"
)

type credentials struct {
	APIKey string `yaml:"api_key"`
}

func credentialsPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, configDirName, credentialsFile), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", configDirName, credentialsFile), nil
}

// APIKey returns the stored API key, preferring the environment
// variable over the credentials file. Empty string means not set.
func APIKey() string {
	if key := os.Getenv(apiKeyEnv); key != "" {
		return key
	}
	path, err := credentialsPath()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var creds credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return ""
	}
	return creds.APIKey
}

// SaveAPIKey writes the API key to the credentials file with 0600
// permissions.
func SaveAPIKey(key string) error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(credentials{APIKey: key})
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
