// Package config loads process configuration from the environment.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process-wide configuration, sourced entirely from the
// environment.
type Config struct {
	// KeysDir is where KeyStore persists <id>.pub/<id>.key/<id>.meta.json
	// triples. Defaults to $CWD/keys.
	KeysDir string `envconfig:"KEYS_DIR" default:"keys"`

	// BaseURL prefixes verificationMethod and statusListCredential IRIs.
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080" validate:"required,url"`

	// AuthDisableRBAC, when true, skips installing the auth middleware
	// seam entirely.
	AuthDisableRBAC bool `envconfig:"AUTH_DISABLE_RBAC" default:"false"`

	// Addr is the HTTP listen address.
	Addr string `envconfig:"ADDR" default:":8080"`

	// Production selects zap's production logging preset.
	Production bool `envconfig:"PRODUCTION" default:"false"`

	// LogPath, when set, additionally writes logs under this directory.
	LogPath string `envconfig:"LOG_PATH"`

	// SchemaFetchTimeout bounds schema HTTP fetches.
	SchemaFetchTimeout time.Duration `envconfig:"SCHEMA_FETCH_TIMEOUT" default:"10s"`

	// ProofClockSkew is the JWT verification clock tolerance.
	ProofClockSkew time.Duration `envconfig:"PROOF_CLOCK_SKEW" default:"60s"`
}

// Load parses the environment into a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
