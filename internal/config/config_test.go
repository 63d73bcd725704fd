package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "escrow.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsRelativeToFile(t *testing.T) {
	path := writeConfig(t, `{
		"ledger": {"chain_config": "chains.yaml", "default_chain": "dev"},
		"registry": {"driver": "FILE"},
		"logging": {"audit": {"enabled": true}}
	}`)
	base := filepath.Dir(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.ChainConfig != filepath.Join(base, "chains.yaml") {
		t.Fatalf("unexpected chain config path %s", cfg.Ledger.ChainConfig)
	}
	if cfg.Registry.Driver != "file" || cfg.Registry.Path != filepath.Join(base, "data", "registry.json") {
		t.Fatalf("unexpected registry %+v", cfg.Registry)
	}
	if cfg.Queue.Driver != "memory" || cfg.Queue.Workers != 1 {
		t.Fatalf("unexpected queue defaults %+v", cfg.Queue)
	}
	if cfg.Logging.Audit.Path != filepath.Join(base, "data", "audit.log") {
		t.Fatalf("unexpected audit path %s", cfg.Logging.Audit.Path)
	}
	if cfg.Metrics.Namespace != "stake_escrow" {
		t.Fatalf("unexpected metrics namespace %s", cfg.Metrics.Namespace)
	}
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	cases := []string{
		`{"registry": {"driver": "etcd"}}`,
		`{"registry": {"driver": "mysql"}}`,
		`{"queue": {"driver": "kafka"}}`,
		`{"queue": {"driver": "rabbitmq"}}`,
	}
	for _, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("expected error for %s", content)
		}
	}
}

func TestResolveFallsBackToEnvironment(t *testing.T) {
	path := writeConfig(t, `{"queue": {"driver": "redis", "redis": {"address": "redis:6379"}}}`)
	t.Setenv(EnvPath, path)

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Queue.Driver != "redis" || cfg.Queue.Redis.Address != "redis:6379" {
		t.Fatalf("unexpected queue config %+v", cfg.Queue)
	}

	t.Setenv(EnvPath, "")
	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if cfg.Registry.Driver != "memory" {
		t.Fatalf("unexpected default registry %s", cfg.Registry.Driver)
	}
}
