package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver by default, got %q", cfg.Store.Driver)
	}
	if cfg.Ingest.OCRFailurePolicy != OCRFailureAbort {
		t.Errorf("expected abort policy by default, got %q", cfg.Ingest.OCRFailurePolicy)
	}
	if cfg.Preview.Contrast != 0.85 {
		t.Errorf("expected preview contrast 0.85, got %v", cfg.Preview.Contrast)
	}
	if len(cfg.Corpus.Extensions) != 1 || cfg.Corpus.Extensions[0] != ".pdf" {
		t.Errorf("unexpected default extensions %v", cfg.Corpus.Extensions)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
corpus:
  root: /srv/corpus
ingest:
  workers: 3
  fileTimeout: 90s
  ocrFailurePolicy: skip
redis:
  enabled: true
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DD_INGEST_WORKERS", "5")
	t.Setenv("DD_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("DD_SERVER_CORS_ORIGINS", "http://localhost:3000,https://docs.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Corpus.Root != "/srv/corpus" {
		t.Errorf("corpus root = %q", cfg.Corpus.Root)
	}
	if cfg.Ingest.Workers != 5 {
		t.Errorf("env override not applied, workers = %d", cfg.Ingest.Workers)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://docs.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Ingest.FileTimeout != 90*time.Second {
		t.Errorf("fileTimeout = %v", cfg.Ingest.FileTimeout)
	}
	if cfg.Ingest.OCRFailurePolicy != OCRFailureSkip {
		t.Errorf("policy = %q", cfg.Ingest.OCRFailurePolicy)
	}
	if !cfg.Redis.Enabled {
		t.Error("expected redis enabled from yaml")
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("unset values should keep defaults, port = %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"unknown policy", func(c *Config) { c.Ingest.OCRFailurePolicy = "retry" }},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }},
		{"missing sqlite path", func(c *Config) { c.Store.SQLitePath = "" }},
		{"missing corpus root", func(c *Config) { c.Corpus.Root = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	want := "host=db port=5433 user=u password=p dbname=d sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
