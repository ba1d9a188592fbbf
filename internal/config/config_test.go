package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("REMOTE_BASE_URL", "")
	t.Setenv("FAKE_REMOTE_OMIT_IMAGE", "")

	cfg := Load()
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.SavedFlash)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, "http://127.0.0.1:9986/api/file", cfg.RemoteBaseURL)
	assert.False(t, cfg.FakeRemoteOmitImage)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REMOTE_BASE_URL", "http://remote:8080/api/file/")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("POLL_MAX_DURATION", "0s")
	t.Setenv("EXPORT_S3_PATH_STYLE", "true")
	t.Setenv("FAKE_REMOTE_FAIL_TYPES", "link_crawl, ,search")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")
	t.Setenv("FAKE_REMOTE_OMIT_IMAGE", "1")

	cfg := Load()
	assert.Equal(t, "http://remote:8080/api/file", cfg.RemoteBaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.PollMaxDuration)
	assert.True(t, cfg.ExportS3PathStyle)
	assert.Equal(t, []string{"link_crawl", "search"}, cfg.FakeRemoteFailTypes)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes)
	assert.True(t, cfg.FakeRemoteOmitImage)
}
