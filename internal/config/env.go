package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "UEBUILD_"

// ParseEnv overrides cfg with UEBUILD_* variables. A nil environ reads the
// process environment. Unset variables leave fields untouched.
func ParseEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
