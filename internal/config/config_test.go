package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8401" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Locking.TTL != 30*time.Second || !cfg.Locking.Enabled {
		t.Errorf("locking = %+v", cfg.Locking)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yaml")
	content := `listen: ":9000"
storage:
  backend: postgres
  dsn: "postgres://localhost/lattice"
locking:
  enabled: false
  ttl: 45s
`
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Storage.Backend != "postgres" || cfg.Storage.DSN == "" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Locking.Enabled || cfg.Locking.TTL != 45*time.Second {
		t.Errorf("locking = %+v", cfg.Locking)
	}
	// Unset keys keep defaults.
	if cfg.Search.MaxResults != 1000 {
		t.Errorf("maxresults = %d", cfg.Search.MaxResults)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("server backend without DSN accepted")
	}
	cfg = Default()
	cfg.Storage.Backend = "oracle"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend accepted")
	}
	cfg = Default()
	cfg.Search.MaxResults = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero maxresults accepted")
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/lattice"
	if got := cfg.DatabasePath(); got != filepath.Join("/var/lib/lattice", "lattice.db") {
		t.Errorf("database path = %q", got)
	}
	cfg.Storage.Path = "/tmp/explicit.db"
	if got := cfg.DatabasePath(); got != "/tmp/explicit.db" {
		t.Errorf("explicit path = %q", got)
	}
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "lattice.yaml")
	if err := WriteTemplate(path); err != nil {
		t.Fatalf("write template: %v", err)
	}
	// The template must load cleanly.
	if _, err := Load(path); err != nil {
		t.Fatalf("load template: %v", err)
	}
	// Second write refuses to clobber.
	if err := WriteTemplate(path); err == nil {
		t.Fatal("template overwrote existing file")
	}
}
