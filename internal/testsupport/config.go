package testsupport

import (
	"path/filepath"
	"testing"

	"yatrisync/internal/config"
)

const hermeticPollIntervalSeconds = 3600

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Netlink, keyring, and the startup sync are off so tests stay hermetic.
// Polling stays on at an interval no test outlives so the config still
// validates once written and reloaded. Options turn these back on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.BaseURL = "http://127.0.0.1:1/api"
	cfgVal.Auth.UseKeyring = false
	cfgVal.Network.Netlink = false
	cfgVal.Network.PollIntervalSeconds = hermeticPollIntervalSeconds
	cfgVal.Sync.SyncOnStart = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAPIBaseURL points replays at url, typically an httptest server.
func WithAPIBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithMaxRetries overrides the replay budget.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.MaxRetries = n
	}
}

// WithSyncOnStart enables the startup sync.
func WithSyncOnStart() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.SyncOnStart = true
	}
}

// WithMetricsBind enables the HTTP listener.
func WithMetricsBind(bind, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Bind = bind
		b.cfg.Metrics.Token = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
