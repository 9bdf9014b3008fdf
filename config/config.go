package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Default environment variable names for secret material. Secrets are
// delivered out-of-band through the environment, never through config
// files or requests.
const (
	DefaultAdminSecretEnv = "GATEKEEPER_ADMIN_SECRET"
	DefaultSigningKeyEnv  = "GATEKEEPER_SIGNING_KEY"
)

// Config is the configuration for a gatekeeper server.
type Config struct {
	LogLevel  string `hcl:"log_level,optional"`
	LogFormat string `hcl:"log_format,optional"`
	LogFile   string `hcl:"log_file,optional"`

	Listeners []ListenerBlock `hcl:"listener,block"`
	Storage   *StorageBlock   `hcl:"storage,block"`
	Auth      *AuthBlock      `hcl:"auth,block"`
}

// ListenerBlock configures one TCP listener.
type ListenerBlock struct {
	Name    string `hcl:"name,label"` // "public" or "admin"
	Address string `hcl:"address"`
}

// StorageBlock configures the credential store backend.
type StorageBlock struct {
	Type string `hcl:"type,label"` // "inmem", "file", or "postgres"

	// File storage
	Path string `hcl:"path,optional"`

	// PostgreSQL storage
	ConnectionURL    string `hcl:"connection_url,optional"`
	UsersTable       string `hcl:"users_table,optional"`
	RevocationsTable string `hcl:"revocations_table,optional"`
	SkipCreateTable  bool   `hcl:"skip_create_table,optional"`
}

// Config returns the storage configuration as a map for the backend
// factory.
func (s *StorageBlock) Config() map[string]string {
	config := map[string]string{"type": s.Type}
	if s.Path != "" {
		config["path"] = s.Path
	}
	if s.ConnectionURL != "" {
		config["connection_url"] = s.ConnectionURL
	}
	if s.UsersTable != "" {
		config["users_table"] = s.UsersTable
	}
	if s.RevocationsTable != "" {
		config["revocations_table"] = s.RevocationsTable
	}
	if s.SkipCreateTable {
		config["skip_create_table"] = "true"
	}
	return config
}

// AuthBlock configures credential validation.
type AuthBlock struct {
	// Mode selects the credential scheme: "legacy" (opaque tokens from
	// the store) or "signed" (self-contained signed tokens).
	Mode string `hcl:"mode,optional"`

	// IdentityHeader is where the platform asserts the caller identity.
	IdentityHeader string `hcl:"identity_header,optional"`

	// RefreshInterval enables proactive token cache refresh when set
	// (e.g. "30s"). Zero disables it; correctness never needs it.
	RefreshInterval string `hcl:"refresh_interval,optional"`

	// TokenTTL is the signed token lifetime, default 720h.
	TokenTTL string `hcl:"token_ttl,optional"`

	// Environment variable names for secret material.
	AdminSecretEnv string `hcl:"admin_secret_env,optional"`
	SigningKeyEnv  string `hcl:"signing_key_env,optional"`
}

// RefreshIntervalDuration parses RefreshInterval, zero when unset.
func (a *AuthBlock) RefreshIntervalDuration() (time.Duration, error) {
	if a == nil || a.RefreshInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(a.RefreshInterval)
}

// TokenTTLDuration parses TokenTTL, zero when unset.
func (a *AuthBlock) TokenTTLDuration() (time.Duration, error) {
	if a == nil || a.TokenTTL == "" {
		return 0, nil
	}
	return time.ParseDuration(a.TokenTTL)
}

// LoadConfig loads and validates an HCL config file.
func LoadConfig(configFile string) (*Config, error) {
	var config Config
	if err := hclsimple.DecodeFile(configFile, nil, &config); err != nil {
		return nil, err
	}

	if config.Storage == nil {
		return nil, fmt.Errorf("a storage block is required")
	}
	if len(config.Listeners) == 0 {
		return nil, fmt.Errorf("at least one listener block is required")
	}
	for _, l := range config.Listeners {
		if l.Name != "public" && l.Name != "admin" {
			return nil, fmt.Errorf("unknown listener %q (want \"public\" or \"admin\")", l.Name)
		}
		if l.Address == "" {
			return nil, fmt.Errorf("listener %q needs an address", l.Name)
		}
	}
	if config.Auth != nil {
		if m := config.Auth.Mode; m != "" && m != "legacy" && m != "signed" {
			return nil, fmt.Errorf("unknown auth mode %q", m)
		}
		if _, err := config.Auth.RefreshIntervalDuration(); err != nil {
			return nil, fmt.Errorf("bad refresh_interval: %w", err)
		}
		if _, err := config.Auth.TokenTTLDuration(); err != nil {
			return nil, fmt.Errorf("bad token_ttl: %w", err)
		}
	}
	return &config, nil
}

// Listener returns the listener with the given name, or nil.
func (c *Config) Listener(name string) *ListenerBlock {
	for i := range c.Listeners {
		if c.Listeners[i].Name == name {
			return &c.Listeners[i]
		}
	}
	return nil
}
