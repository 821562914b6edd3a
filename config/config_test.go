package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/logging"
	"github.com/c0deZ3R0/ngw-sync-kit/transport/ngw"
)

const sampleYAML = `
connections:
  - id: demo
    url: https://demo.nextgis.com
    username: administrator
    password: secret
  - id: local
    url: http://localhost:8080
transport:
  timeout: 1m30s
  max_body_bytes: 1048576
sync:
  max_pages: 50
logging:
  level: debug
  format: json
`

func TestLoadFromBytesYAML(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(sampleYAML), "yaml")
	require.NoError(t, err)

	require.Len(t, cfg.Connections, 2)
	conn, err := cfg.Connection("demo")
	require.NoError(t, err)
	assert.Equal(t, Connection{ID: "demo", URL: "https://demo.nextgis.com", Username: "administrator", Password: "secret"}, conn)

	assert.Equal(t, 90*time.Second, time.Duration(cfg.Transport.Timeout))
	assert.Equal(t, int64(1048576), cfg.Transport.MaxBodyBytes)
	assert.Equal(t, ngw.DefaultLimits.MaxDecompressedBytes, cfg.Transport.MaxDecompressedBytes, "unset values keep defaults")
	assert.Equal(t, 50, cfg.Sync.MaxPages)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, logging.EnvDevelopment, cfg.Logging.Environment)

	_, err = cfg.Connection("missing")
	require.Error(t, err)
	assert.Equal(t, syncErrors.ErrCodeValidationFailure, syncErrors.CodeOf(err))
}

func TestLoadFromBytesJSON(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`{"connections":[{"id":"a","url":"http://a"}],"transport":{"timeout":"5s"}}`), "json")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Transport.Timeout))
	assert.Equal(t, "a", cfg.Connections[0].ID)
}

func TestLoadFromBytesErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
	}{
		{"unsupported format", "a = 1", "toml"},
		{"invalid yaml", "connections: [", "yaml"},
		{"invalid duration", "transport:\n  timeout: soon\n", "yaml"},
		{"missing id", "connections:\n  - url: http://a\n", "yaml"},
		{"duplicate id", "connections:\n  - {id: a, url: http://a}\n  - {id: a, url: http://b}\n", "yaml"},
		{"bad scheme", "connections:\n  - {id: a, url: ftp://a}\n", "yaml"},
		{"password without username", "connections:\n  - {id: a, url: http://a, password: x}\n", "yaml"},
		{"negative pages", "sync:\n  max_pages: -1\n", "yaml"},
		{"bad log format", "logging:\n  format: xml\n", "yml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.Equal(t, syncErrors.ErrCodeValidationFailure, syncErrors.CodeOf(err))
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.Connections = append(cfg.Connections, Connection{ID: "demo", URL: "https://demo.nextgis.com", Username: "u", Password: "p"})
	cfg.Sync.MaxPages = 7

	for _, name := range []string{"ngwsync.yaml", "ngwsync.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, cfg.SaveToFile(path))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		loaded, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, loaded, name)
	}

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := Default()
	bad.Connections = []Connection{{ID: "x"}}
	assert.Error(t, bad.SaveToFile(filepath.Join(dir, "bad.yaml")))
}

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "u" || pass != "p" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	cfg := Default()
	cfg.Connections = []Connection{{ID: "test", URL: srv.URL, Username: "u", Password: "p"}}
	require.NoError(t, cfg.Validate())

	client, err := cfg.Client("test", logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, srv.URL, client.BaseURL())

	raw, err := client.Get(context.Background(), "/api/ping")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(raw))

	_, err = cfg.Client("other", nil)
	assert.Error(t, err)
}

func TestLoggingConfigAppliesEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_ADD_SOURCE", "")

	cfg := Default()
	got := cfg.LoggingConfig()
	assert.Equal(t, "warn", got.Level)
	assert.Equal(t, "text", got.Format)
}

func TestLoadDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "ngwsync", "config.yaml"), path)

	cfg.Connections = []Connection{{ID: "demo", URL: "https://demo.nextgis.com"}}
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
