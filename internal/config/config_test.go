package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create temporary config file
	content := `
server:
  port: 9090
  host: "127.0.0.1"

tools:
  ytdlpPath: "/opt/tools/yt-dlp"
  probeTimeout: 2s

redis:
  enabled: true
  host: "cache"
`

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Load config
	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify loaded values
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Tools.YtDlpPath != "/opt/tools/yt-dlp" {
		t.Errorf("Expected yt-dlp path /opt/tools/yt-dlp, got %s", cfg.Tools.YtDlpPath)
	}

	if cfg.Tools.ProbeTimeout != 2*time.Second {
		t.Errorf("Expected probe timeout 2s, got %v", cfg.Tools.ProbeTimeout)
	}

	if !cfg.Redis.Enabled || cfg.Redis.Host != "cache" {
		t.Errorf("Expected redis enabled on host cache, got %+v", cfg.Redis)
	}

	// Defaults survive partial files
	if cfg.Download.MaxFilenameLen != 120 {
		t.Errorf("Expected default filename length 120, got %d", cfg.Download.MaxFilenameLen)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 4*time.Second, cfg.Tools.ProbeTimeout)
	assert.Equal(t, "mp4", cfg.Download.MergeFormat)
	assert.Equal(t, 10*time.Minute, cfg.Redis.MetadataTTL)
	assert.Equal(t, "file", cfg.Settings.Backend)
	assert.False(t, cfg.Storage.Enabled)
	assert.Empty(t, cfg.Webhook.URLs)
	assert.Equal(t, []string{"completed", "failed"}, cfg.Webhook.Events)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
}
