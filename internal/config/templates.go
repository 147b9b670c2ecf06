package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders a starter config from the defaults.
func Template() ([]byte, error) {
	def := Default()
	var raw fileConfig
	raw.Panel.Host = "192.168.1.50"
	raw.Panel.Port = def.Panel.Port
	raw.Panel.Password = def.Panel.Password
	raw.Panel.ConnectTimeout = def.Panel.ConnectTimeout.String()
	raw.Panel.ConnectMaxAttempts = def.Panel.ConnectMaxAttempts
	raw.SyncTime.Timezone = "Europe/Lisbon"
	raw.SyncTime.ReplyTimeout = def.SyncTime.ReplyTimeout.String()
	raw.Interfaces.Enabled = []string{"log"}
	out, err := toml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}
	return out, nil
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
	return os.WriteFile(path, template, 0o600)
}
