package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/lacewing/engine/netengine"
	"github.com/wippyai/lacewing/errors"
)

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(`
script: server.js
wasm: handlers.wasm
port: 8080
secure_port: 8443
certificate:
  file: server.pem
  passphrase: secret
filter:
  local: 127.0.0.1
  local_port: 8080
  remote: 10.0.0.1
  reuse: true
manual_finish: true
sessions:
  capacity: 10
  ttl: 5m
  database: sessions.db
  purge: "@hourly"
log:
  level: debug
  development: true
`))
	require.NoError(t, err)

	assert.Equal(t, "server.js", cfg.Script)
	assert.Equal(t, "handlers.wasm", cfg.Wasm)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 8443, cfg.SecurePort)
	assert.Equal(t, Certificate{File: "server.pem", Passphrase: "secret"}, cfg.Certificate)
	assert.Equal(t, Filter{Local: "127.0.0.1", LocalPort: 8080, Remote: "10.0.0.1", Reuse: true}, cfg.Filter)
	assert.True(t, cfg.ManualFinish)
	assert.Equal(t, Sessions{Capacity: 10, TTL: 5 * time.Minute, Database: "sessions.db", Purge: "@hourly"}, cfg.Sessions)
	assert.Equal(t, Log{Level: "debug", Development: true}, cfg.Log)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("script: hello.js\n"))
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.Sessions.Capacity)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Filter.IsZero())
	assert.Zero(t, cfg.Port)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		path []string
	}{
		{"nothing to run", "port: 80\n", []string{"script"}},
		{"port range", "script: a.js\nport: 70000\n", []string{"port"}},
		{"secure port needs certificate", "script: a.js\nsecure_port: 443\n", []string{"certificate", "file"}},
		{"wasm needs port", "wasm: a.wasm\n", []string{"port"}},
		{"log level", "script: a.js\nlog: {level: loud}\n", []string{"log", "level"}},
		{"ttl", "script: a.js\nsessions: {ttl: 0s}\n", []string{"sessions", "ttl"}},
		{"purge schedule", "script: a.js\nsessions: {purge: whenever}\n", []string{"sessions", "purge"}},
		{"filter local", "script: a.js\nfilter: {local: 'not a host!'}\n", []string{"filter", "local"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.HasKind(err, errors.KindInvalidInput))

			var ce *errors.Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, errors.PhaseConfig, ce.Phase)
			assert.Equal(t, tt.path, ce.Path)
		})
	}
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("script: a.js\nsripts: b.js\n"))
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lwshell.yaml")
	require.NoError(t, os.WriteFile(path, []byte("script: hello.js\nport: 8080\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.HasKind(err, errors.KindNotFound))
}

func TestSchema(t *testing.T) {
	out, err := Schema()
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, `"secure_port"`)
	assert.Contains(t, s, `"manual_finish"`)
	assert.Contains(t, s, `"purge"`)
	assert.Contains(t, s, "lwshell configuration")
}

func TestSessionStore(t *testing.T) {
	cfg := Default()
	store, err := cfg.SessionStore()
	require.NoError(t, err)
	assert.IsType(t, &netengine.MemoryStore{}, store)
	require.NoError(t, store.Close())

	cfg.Sessions.Database = filepath.Join(t.TempDir(), "sessions.db")
	store, err = cfg.SessionStore()
	require.NoError(t, err)
	assert.IsType(t, &netengine.SQLStore{}, store)
	require.NoError(t, store.Close())
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	log, err := cfg.Logger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(-1))
	assert.True(t, log.Core().Enabled(1))
}
