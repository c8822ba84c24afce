package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"yatrisync/internal/config"
)

// WriteConfig renders cfg as TOML into the config's base directory and
// returns the file path. Encode redacts tokens, so configs carrying them
// should set them through the environment instead.
func WriteConfig(t testing.TB, cfg *config.Config) string {
	t.Helper()

	if cfg.API.Token != "" || cfg.Metrics.Token != "" {
		t.Fatalf("WriteConfig: tokens would be redacted; set them via environment")
	}
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
