package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"ANDON_CONFIG", "DATABASE_URL", "PG_DSN", "HTTP_ADDR", "CORS_ORIGINS", "ANDON_TIMEZONE", "WEBHOOK_URL", "WEBHOOK_TIMEOUT", "NATS_URL", "LOG_JSON"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "andon.station", cfg.NATS.SubjectPrefix)
	assert.Error(t, cfg.Validate())
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "andon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
database:
  url: postgres://file
timezone: Asia/Ho_Chi_Minh
webhook:
  url: http://flow.example
  format: text
  timeout: 2s
`), 0o600))
	t.Setenv("PG_DSN", "postgres://env")
	t.Setenv("CORS_ORIGINS", "http://a, http://b")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, WebhookFormatText, cfg.Webhook.Format)
	assert.Equal(t, 3*time.Second, cfg.Webhook.Timeout)
	require.NoError(t, cfg.Validate())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Ho_Chi_Minh", loc.String())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgres://x"
	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.URL = "postgres://x"
	cfg.Webhook.Format = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}
