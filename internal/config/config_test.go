package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	data := []byte(`port: 9000
log_level: debug
redis_addr: localhost:6379
allowed_origins:
  - https://a.example
  - https://b.example
resize_policy: height
request_timeout: 30s
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	var cfg ServerConfig
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 || cfg.LogLevel != "debug" || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("cfg: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins: %v", cfg.AllowedOrigins)
	}
	if cfg.ResizePolicy != "height" || cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("cfg: %+v", cfg)
	}
}

func TestFlagsBeatConfigFile(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("METRICS_PORT", "")
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := []byte("port: 18888\nlog_level: debug\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	// env defaults, then the file, then explicit flags.
	var cfg ServerConfig
	fs := flag.NewFlagSet("uibridge", flag.ContinueOnError)
	cfg.bindFlags(fs)
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := fs.Parse([]string{"-port=19999"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Port != 19999 {
		t.Fatalf("explicit flag must beat the file: port %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("file value must survive for unset flags: %q", cfg.LogLevel)
	}
	if cfg.MetricsPort != 0 {
		t.Fatalf("metrics port should default to the public port: %d", cfg.MetricsPort)
	}
}

func TestLoadFileMissing(t *testing.T) {
	var cfg ServerConfig
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("splitList: %v", got)
	}
}
