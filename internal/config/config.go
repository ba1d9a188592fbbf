package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds shared runtime configuration for the wizard client and the scripted remote.
type Config struct {
	Env            string
	RemoteBaseURL  string
	RequestTimeout time.Duration

	PollInterval       time.Duration
	PollMaxDuration    time.Duration
	PollBackoffInitial time.Duration
	PollBackoffMax     time.Duration
	SavedFlash         time.Duration

	MaxUploadBytes int64

	ExportDir         string
	ExportS3Bucket    string
	ExportS3Region    string
	ExportS3Endpoint  string
	ExportS3Prefix    string
	ExportS3PathStyle bool

	MetricsAddr string
	LogLevel    string
	LogFormat   string
	LogFile     string

	FakeRemoteAddr       string
	FakeRemoteFailTypes  []string
	FakeRemoteFailCard   bool
	FakeRemoteFailReason string
	FakeRemoteOmitImage  bool
}

// Load reads configuration from environment variables with sane defaults for local development.
func Load() Config {
	return Config{
		Env:                  getEnv("APP_ENV", "dev"),
		RemoteBaseURL:        strings.TrimRight(getEnv("REMOTE_BASE_URL", "http://127.0.0.1:9986/api/file"), "/"),
		RequestTimeout:       getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		PollInterval:         getEnvDuration("POLL_INTERVAL", time.Second),
		PollMaxDuration:      getEnvDuration("POLL_MAX_DURATION", 30*time.Minute),
		PollBackoffInitial:   getEnvDuration("POLL_BACKOFF_INITIAL", 2*time.Second),
		PollBackoffMax:       getEnvDuration("POLL_BACKOFF_MAX", 30*time.Second),
		SavedFlash:           getEnvDuration("SAVED_FLASH", 1500*time.Millisecond),
		MaxUploadBytes:       int64(getEnvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		ExportDir:            getEnv("EXPORT_DIR", "./output"),
		ExportS3Bucket:       getEnv("EXPORT_S3_BUCKET", ""),
		ExportS3Region:       getEnv("EXPORT_S3_REGION", "us-east-1"),
		ExportS3Endpoint:     getEnv("EXPORT_S3_ENDPOINT", ""),
		ExportS3Prefix:       getEnv("EXPORT_S3_PREFIX", "cards/"),
		ExportS3PathStyle:    getEnvBool("EXPORT_S3_PATH_STYLE", false),
		MetricsAddr:          getEnv("METRICS_ADDR", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		LogFile:              getEnv("LOG_FILE", "cardwizard.log"),
		FakeRemoteAddr:       getEnv("FAKE_REMOTE_ADDR", "127.0.0.1:9986"),
		FakeRemoteFailTypes:  getEnvList("FAKE_REMOTE_FAIL_TYPES", nil),
		FakeRemoteFailCard:   getEnvBool("FAKE_REMOTE_FAIL_CARD", false),
		FakeRemoteFailReason: getEnv("FAKE_REMOTE_FAIL_REASON", ""),
		FakeRemoteOmitImage:  getEnvBool("FAKE_REMOTE_OMIT_IMAGE", false),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
