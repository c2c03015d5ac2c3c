package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the assistant server and the
// terminal client.
type Config struct {
	Server    ServerConfig              `json:"server"`
	Client    ClientConfig              `json:"client"`
	Redis     RedisConfig               `json:"redis"`
	Databases map[string]DatabaseConfig `json:"databases"`
	Knowledge KnowledgeConfig           `json:"knowledge"`
	Providers map[string]ProviderConfig `json:"providers"`
	Guardrail GuardrailConfig           `json:"guardrail"`
}

type ServerConfig struct {
	Address           string `json:"address"`
	AuthRequired      bool   `json:"auth_required"`
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
}

type ClientConfig struct {
	APIBaseURL string `json:"api_base_url"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type KnowledgeConfig struct {
	DocsDir     string `json:"docs_dir"`
	LinkSecret  string `json:"link_secret"`
	LinkTTL     int    `json:"link_ttl"` // minutes
	PublicBase  string `json:"public_base"`
	MaxResults  int    `json:"max_results"`
	ContextSize int    `json:"context_size"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type GuardrailConfig struct {
	BlockedTerms []string `json:"blocked_terms"`
}

// Load reads configuration from the provided path (defaults to config.json).
// Relative paths inside the file resolve against the config file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	base := filepath.Dir(absPath)
	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(base, db.DSN)
		cfg.Databases["sqlite3"] = db
	}
	if cfg.Knowledge.DocsDir != "" && !filepath.IsAbs(cfg.Knowledge.DocsDir) {
		cfg.Knowledge.DocsDir = filepath.Join(base, cfg.Knowledge.DocsDir)
	}

	return &cfg, nil
}
