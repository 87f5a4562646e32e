package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Judge.RunTimeout != 10*time.Second {
		t.Errorf("RunTimeout = %s, want 10s", cfg.Judge.RunTimeout)
	}
	if cfg.Languages.CSharp.Compiler != "csc" || cfg.Languages.CSharp.Runtime != "mono" {
		t.Errorf("csharp toolchain = %+v", cfg.Languages.CSharp)
	}
	if cfg.Languages.TypeScript.Compiler != "tsc" || cfg.Languages.TypeScript.Runtime != "node" {
		t.Errorf("typescript toolchain = %+v", cfg.Languages.TypeScript)
	}
	if cfg.Session.DefaultTimeBudget != 30*time.Minute {
		t.Errorf("DefaultTimeBudget = %s, want 30m", cfg.Session.DefaultTimeBudget)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
judge:
  run_timeout: 5s
languages:
  typescript:
    compiler: tsc
    runtime: deno
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Judge.RunTimeout != 5*time.Second {
		t.Errorf("RunTimeout = %s, want 5s", cfg.Judge.RunTimeout)
	}
	if cfg.Languages.TypeScript.Runtime != "deno" {
		t.Errorf("typescript runtime = %q, want deno", cfg.Languages.TypeScript.Runtime)
	}
	// Untouched sections keep their defaults.
	if cfg.Languages.CSharp.Compiler != "csc" {
		t.Errorf("csharp compiler = %q, want the default", cfg.Languages.CSharp.Compiler)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want the default", cfg.Server.Host)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("Load of malformed YAML succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"short run timeout", func(c *Config) { c.Judge.RunTimeout = 100 * time.Millisecond }, "run_timeout"},
		{"no concurrency", func(c *Config) { c.Judge.MaxConcurrent = 0 }, "max_concurrent"},
		{"no scratch root", func(c *Config) { c.Judge.ScratchRoot = "" }, "scratch_root"},
		{"no results dir", func(c *Config) { c.Results.Dir = "" }, "results.dir"},
		{"no csharp compiler", func(c *Config) { c.Languages.CSharp.Compiler = "" }, "languages.csharp"},
		{"no typescript runtime", func(c *Config) { c.Languages.TypeScript.Runtime = "" }, "languages.typescript"},
		{"tiny budget", func(c *Config) { c.Session.DefaultTimeBudget = time.Second }, "default_time_budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9000
	if got := cfg.Address(); got != "127.0.0.1:9000" {
		t.Errorf("Address = %q", got)
	}
}
