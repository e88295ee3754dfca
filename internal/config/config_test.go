package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptforge.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.Storage.RunStore.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("unexpected backend defaults: %+v", cfg)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.TimeoutSeconds != 120 {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Runtime.MaxCycles != 10 || cfg.Runtime.MaxRetries != 3 || cfg.Runtime.Workers != 4 {
		t.Fatalf("unexpected runtime defaults: %+v", cfg.Runtime)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("data dir not resolved against config dir: %s", cfg.Runtime.DataDir)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptforge.json")
	raw := `{
		"roles": {"model_table_path": "roles.yaml"},
		"runtime": {"data_dir": "state"},
		"logging": {"audit": {"enabled": true, "path": "logs/audit.log"}}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Roles.ModelTablePath != filepath.Join(dir, "roles.yaml") {
		t.Fatalf("model table path not resolved: %s", cfg.Roles.ModelTablePath)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "state") {
		t.Fatalf("data dir not resolved: %s", cfg.Runtime.DataDir)
	}
	if cfg.Logging.Audit.Path != filepath.Join(dir, "logs/audit.log") {
		t.Fatalf("audit path not resolved: %s", cfg.Logging.Audit.Path)
	}
}

func TestLoadRejectsMissingOrMalformed(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/etc/sf.json"); got != "/etc/sf.json" {
		t.Fatalf("explicit path ignored: %s", got)
	}

	t.Setenv(EnvConfigPath, "/tmp/env.json")
	if got := ResolvePath(""); got != "/tmp/env.json" {
		t.Fatalf("env override ignored: %s", got)
	}

	t.Setenv(EnvConfigPath, "")
	if got := ResolvePath(""); got != "configs/scriptforge.json" {
		t.Fatalf("unexpected default path: %s", got)
	}
}
