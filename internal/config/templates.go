package config

import (
	"fmt"
	"os"

	"github.com/danmuck/simbridge/internal/bridge"
	"github.com/pelletier/go-toml/v2"
)

// Template renders the default service config as TOML.
func Template() (string, error) {
	return Render(bridge.DefaultServiceConfig())
}

func Render(cfg bridge.ServiceConfig) (string, error) {
	data, err := toml.Marshal(FromService(cfg))
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
