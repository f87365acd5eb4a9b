package wire

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadConfig reads and parses an agents.conf file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("wire: read %s: %w", path, err)
	}

	var conf Config
	if err := json.Unmarshal(data, &conf); err != nil {
		return Config{}, fmt.Errorf("wire: parse %s: %w", path, err)
	}
	return conf, nil
}

// WriteConfig serializes conf as indented JSON and writes it to path.
func WriteConfig(path string, conf Config) (int, error) {
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("wire: encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("wire: write %s: %w", path, err)
	}
	return len(data), nil
}
