package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Full(t *testing.T) {
	path := writeConfig(t, `
log_level  = "info"
log_format = "json"

listener "public" {
  address = "0.0.0.0:8080"
}

listener "admin" {
  address = "127.0.0.1:8081"
}

storage "file" {
  path = "/var/lib/gatekeeper"
}

auth {
  mode             = "signed"
  refresh_interval = "30s"
  token_ttl        = "720h"
}
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "info", config.LogLevel)
	require.Len(t, config.Listeners, 2)
	require.NotNil(t, config.Listener("public"))
	assert.Equal(t, "0.0.0.0:8080", config.Listener("public").Address)
	assert.Nil(t, config.Listener("metrics"))

	require.NotNil(t, config.Storage)
	assert.Equal(t, "file", config.Storage.Type)
	assert.Equal(t, map[string]string{
		"type": "file",
		"path": "/var/lib/gatekeeper",
	}, config.Storage.Config())

	require.NotNil(t, config.Auth)
	assert.Equal(t, "signed", config.Auth.Mode)

	interval, err := config.Auth.RefreshIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, interval)

	ttl, err := config.Auth.TokenTTLDuration()
	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, ttl)
}

func TestLoadConfig_PostgresStorage(t *testing.T) {
	path := writeConfig(t, `
listener "public" {
  address = "0.0.0.0:8080"
}

storage "postgres" {
  connection_url    = "postgres://gatekeeper@db/creds?sslmode=disable"
  users_table       = "creds"
  skip_create_table = true
}
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	got := config.Storage.Config()
	assert.Equal(t, "postgres", got["type"])
	assert.Equal(t, "creds", got["users_table"])
	assert.Equal(t, "true", got["skip_create_table"])
	assert.NotContains(t, got, "revocations_table")
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no storage", `
listener "public" {
  address = "0.0.0.0:8080"
}
`},
		{"no listeners", `
storage "inmem" {}
`},
		{"unknown listener name", `
listener "metrics" {
  address = "0.0.0.0:9100"
}
storage "inmem" {}
`},
		{"listener without address", `
listener "public" {
  address = ""
}
storage "inmem" {}
`},
		{"unknown auth mode", `
listener "public" {
  address = "0.0.0.0:8080"
}
storage "inmem" {}
auth {
  mode = "mtls"
}
`},
		{"bad refresh interval", `
listener "public" {
  address = "0.0.0.0:8080"
}
storage "inmem" {}
auth {
  refresh_interval = "soon"
}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestAuthBlock_NilDurations(t *testing.T) {
	var auth *AuthBlock

	interval, err := auth.RefreshIntervalDuration()
	require.NoError(t, err)
	assert.Zero(t, interval)

	ttl, err := auth.TokenTTLDuration()
	require.NoError(t, err)
	assert.Zero(t, ttl)
}
