package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd)
	// RegisterFlags attaches to PersistentFlags; Load reads cmd.Flags(),
	// which only sees persistent flags once they're part of a command's
	// own flag set via InheritedFlags/merge. Mirror real CLI wiring by
	// copying persistent flags onto the command's local set for the test.
	cmd.Flags().AddFlagSet(cmd.PersistentFlags())
	return cmd
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestCmd())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.HTTPTimeout != DefaultHTTPTimeout {
		t.Errorf("HTTPTimeout = %v, want %v", cfg.HTTPTimeout, DefaultHTTPTimeout)
	}
	if !cfg.Headless {
		t.Error("expected Headless default true")
	}
}

func TestLoadVerboseFlagOverridesLogLevel(t *testing.T) {
	cmd := newTestCmd()
	if err := cmd.Flags().Set("verbose", "true"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadProxyFlagSplitsCSV(t *testing.T) {
	cmd := newTestCmd()
	if err := cmd.Flags().Set("proxy", "http://a:1,http://b:2"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Proxy != "" {
		t.Errorf("expected Proxy empty for multi-entry list, got %q", cfg.Proxy)
	}
	if len(cfg.Proxies) != 2 {
		t.Errorf("expected 2 proxies, got %v", cfg.Proxies)
	}
}

func TestLoadSingleProxyFlagSetsProxyNotProxies(t *testing.T) {
	cmd := newTestCmd()
	if err := cmd.Flags().Set("proxy", "http://solo:1"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Proxy != "http://solo:1" {
		t.Errorf("Proxy = %q, want http://solo:1", cfg.Proxy)
	}
	if len(cfg.Proxies) != 0 {
		t.Errorf("expected no Proxies when a single proxy is given, got %v", cfg.Proxies)
	}
}

func TestLoadTimeoutFlagParsesDuration(t *testing.T) {
	cmd := newTestCmd()
	if err := cmd.Flags().Set("timeout", "45s"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPTimeout != 45*time.Second {
		t.Errorf("HTTPTimeout = %v, want 45s", cfg.HTTPTimeout)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	cmd := newTestCmd()
	if err := cmd.Flags().Set("mode", "bogus"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestValidateRejectsNonPositiveFields(t *testing.T) {
	base := &Config{
		HTTPTimeout:       time.Second,
		CacheMaxSizeBytes: 1,
		MaxRepeats:        1,
		MaxConcurrency:    1,
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"timeout", func(c *Config) { c.HTTPTimeout = 0 }},
		{"cache size", func(c *Config) { c.CacheMaxSizeBytes = 0 }},
		{"max repeats", func(c *Config) { c.MaxRepeats = 0 }},
		{"max concurrency", func(c *Config) { c.MaxConcurrency = 0 }},
		{"mode", func(c *Config) { c.Mode = "nonsense" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a , b,,c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitCSV(...) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitCSV(...)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
