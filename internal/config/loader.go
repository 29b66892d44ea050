package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "REVIEWD_"

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (REVIEWD_SERVER_PORT, REVIEWD_LLM_API_KEY, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// A missing config file is not an error; defaults and environment
// variables alone are enough to run.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	// Environment variables map section_field to section.field_name:
	// REVIEWD_SERVER_PORT -> server.port
	// REVIEWD_LLM_BASE_URL -> llm.base_url
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
