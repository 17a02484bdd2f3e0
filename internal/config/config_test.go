package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/remask/remask/internal/masking"
)

func TestGetDefaultsAreValid(t *testing.T) {
	cfg := GetDefaults()
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("default configuration is invalid: %v", err)
	}
	if cfg.Server.Port != 8484 {
		t.Errorf("default port = %d, want 8484", cfg.Server.Port)
	}
	if cfg.Sessions.KeyPrefix != "remask:session:" {
		t.Errorf("default session prefix = %q", cfg.Sessions.KeyPrefix)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Defaults", func(c *Config) {}, false},
		{"PortTooLow", func(c *Config) { c.Server.Port = 0 }, true},
		{"PortTooHigh", func(c *Config) { c.Server.Port = 70000 }, true},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"UnknownCategory", func(c *Config) { c.Masking.Categories = map[string]bool{"secrets": true} }, true},
		{"KnownCategory", func(c *Config) { c.Masking.Categories = map[string]bool{"pii": true} }, false},
		{"RateLimitZero", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }, true},
		{"RateLimitDisabledZero", func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.RequestsPerSecond = 0
		}, false},
		{"ProxyWithoutUpstream", func(c *Config) { c.Proxy.Enabled = true }, true},
		{"ProxyWithUpstream", func(c *Config) {
			c.Proxy.Enabled = true
			c.Proxy.Upstream = "https://api.example.com"
		}, false},
		{"SessionsWithoutRedis", func(c *Config) {
			c.Sessions.Enabled = true
			c.Sessions.RedisURL = ""
		}, true},
		{"DatabaseWithoutURL", func(c *Config) { c.Patterns.Database.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr && err == nil {
				t.Error("expected a validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestToEngineConfig(t *testing.T) {
	m := MaskingConfig{
		Categories: map[string]bool{"pii": true, "cloud-keys": false},
		Include:    []string{"generic_secret"},
		Exclude:    []string{"ipv4_address"},
		Whitelist:  []string{"AKIA0000000000000000"},
	}

	cfg := m.ToEngineConfig()
	if !cfg.Categories[masking.CategoryPII] {
		t.Error("pii category should be enabled")
	}
	if cfg.Categories[masking.CategoryCloudKeys] {
		t.Error("cloud-keys category should be disabled")
	}
	if len(cfg.Include) != 1 || cfg.Include[0] != "generic_secret" {
		t.Errorf("include = %v", cfg.Include)
	}
	if len(cfg.Whitelist) != 1 {
		t.Errorf("whitelist = %v", cfg.Whitelist)
	}

	t.Run("EmptyCategories", func(t *testing.T) {
		cfg := MaskingConfig{}.ToEngineConfig()
		if cfg.Categories != nil {
			t.Errorf("empty masking config should leave categories nil, got %v", cfg.Categories)
		}
	})
}

func TestLoadRulepack(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "pack.yaml")
		content := `name: internal tokens
patterns:
  - name: Build Token
    pattern: bt_[a-f0-9]{16}
    replacement: "[BUILD_TOKEN]"
    severity: high
  - name: Deploy Ticket
    pattern: ticket-\d{6}
    flags: i
    replacement: "[TICKET]"
    enabled: false
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		pack, err := LoadRulepack(path)
		if err != nil {
			t.Fatalf("LoadRulepack: %v", err)
		}
		if pack.Name != "internal tokens" {
			t.Errorf("pack name = %q", pack.Name)
		}
		if len(pack.Patterns) != 2 {
			t.Fatalf("loaded %d patterns, want 2", len(pack.Patterns))
		}
		first := pack.Patterns[0]
		if first.Name != "Build Token" || first.Pattern != `bt_[a-f0-9]{16}` {
			t.Errorf("first pattern = %+v", first)
		}
		if first.Enabled != nil {
			t.Error("omitted enabled flag should stay nil")
		}
		second := pack.Patterns[1]
		if second.Enabled == nil || *second.Enabled {
			t.Error("second pattern should be explicitly disabled")
		}
		if second.Flags != "i" {
			t.Errorf("second pattern flags = %q", second.Flags)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := LoadRulepack(filepath.Join(dir, "absent.yaml")); err == nil {
			t.Error("expected an error for a missing file")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		if err := os.WriteFile(path, []byte("name: nothing\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadRulepack(path); err == nil {
			t.Error("expected an error for a pack with no patterns")
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		if err := os.WriteFile(path, []byte("patterns: [unclosed"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadRulepack(path); err == nil {
			t.Error("expected a parse error")
		}
	})

	t.Run("Combined", func(t *testing.T) {
		a := filepath.Join(dir, "a.yaml")
		b := filepath.Join(dir, "b.yaml")
		os.WriteFile(a, []byte("patterns:\n  - name: A\n    pattern: aa+\n    replacement: \"[A]\"\n"), 0o644)
		os.WriteFile(b, []byte("patterns:\n  - name: B\n    pattern: bb+\n    replacement: \"[B]\"\n"), 0o644)

		specs, err := LoadRulepacks([]string{a, b})
		if err != nil {
			t.Fatalf("LoadRulepacks: %v", err)
		}
		if len(specs) != 2 || specs[0].Name != "A" || specs[1].Name != "B" {
			t.Errorf("combined specs = %+v", specs)
		}
	})
}
