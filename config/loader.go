package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load reads path as YAML, overlays .env/.env.local onto the process
// environment, expands `${VAR}`-style references against the result, and
// decodes into a Config with SetDefaults applied. Grounded on the
// teacher's pkg/config/loader.go Load(ctx) flow (decode to a generic map,
// expand, then mapstructure.Decode into the typed Config), minus its
// dynamic-provider watch machinery, which this module's single
// load-once-at-startup model doesn't need (spec §6 names no hot-reload
// requirement).
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("config: loading env files: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	expanded := expandEnvVarsInData(generic)

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "yaml",
	})
	if err != nil {
		return nil, fmt.Errorf("config: building decoder: %w", err)
	}
	if err := dec.Decode(expanded); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}
