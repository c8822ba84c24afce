package testsupport_test

import (
	"testing"

	"yatrisync/internal/config"
	"yatrisync/internal/testsupport"
)

func TestNewConfigValidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("hermetic config must validate: %v", err)
	}
}

func TestWrittenConfigLoads(t *testing.T) {
	t.Setenv("YATRISYNC_API_URL", "")
	t.Setenv("YATRISYNC_API_TOKEN", "")
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(4))
	path := testsupport.WriteConfig(t, cfg)

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("Load resolved %q (exists=%v), want %q", resolved, exists, path)
	}
	if loaded.Network.Netlink || loaded.Sync.SyncOnStart {
		t.Fatalf("hermetic switches lost on reload: %+v", loaded.Network)
	}
	if loaded.Sync.MaxRetries != 4 || loaded.Paths.DataDir != cfg.Paths.DataDir {
		t.Fatalf("reloaded config differs: %+v", loaded.Sync)
	}
}
