package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	raw := `{
		"server": {"address": ":9000", "auth_required": true, "provider": "openai", "model": "gpt-4o-mini"},
		"client": {"api_base_url": "http://localhost:9000"},
		"redis": {"host": "localhost", "port": 6379},
		"databases": {
			"sqlite3": {"dsn": "data/app.db"},
			"mysql": {"username": "app", "host": "db.internal", "port": 3306, "db_name": "schoolchat"}
		},
		"knowledge": {"docs_dir": "docs", "link_ttl": 30, "max_results": 5},
		"providers": {"openai": {"api_key": "sk-test", "model": "gpt-4o-mini"}},
		"guardrail": {"blocked_terms": ["foo"]}
	}`
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9000" || !cfg.Server.AuthRequired {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Client.APIBaseURL != "http://localhost:9000" {
		t.Fatalf("unexpected client config: %+v", cfg.Client)
	}

	// Relative paths resolve against the config file's directory.
	if want := filepath.Join(dir, "data/app.db"); cfg.Databases["sqlite3"].DSN != want {
		t.Fatalf("sqlite dsn = %q, want %q", cfg.Databases["sqlite3"].DSN, want)
	}
	if want := filepath.Join(dir, "docs"); cfg.Knowledge.DocsDir != want {
		t.Fatalf("docs dir = %q, want %q", cfg.Knowledge.DocsDir, want)
	}

	if cfg.Providers["openai"].APIKey != "sk-test" {
		t.Fatalf("provider config missing: %+v", cfg.Providers)
	}
	if len(cfg.Guardrail.BlockedTerms) != 1 || cfg.Guardrail.BlockedTerms[0] != "foo" {
		t.Fatalf("unexpected guardrail config: %+v", cfg.Guardrail)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for malformed json")
	}
}
