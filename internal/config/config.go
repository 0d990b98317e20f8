package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Config holds application configuration values, combined from defaults,
// environment variables, and CLI flags (later sources win).
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// Browser
	HTTPTimeout time.Duration
	UserAgent   string
	Proxy       string
	Proxies     []string
	Headless    bool

	// Rate Limiting (crawl/search actions)
	RateLimitRPS   float64
	RateLimitBurst int

	// Caching (scrapeSchema memoization)
	CacheTTL          time.Duration
	CacheMaxSizeBytes int64

	// Interpreter
	MaxRepeats     int
	MaxConcurrency int
	Mode           string // "" | "editor"

	// Session persistence
	Session string
}

// RegisterFlags adds every flag Load reads to cmd's persistent flag set.
// Called once at CLI init time, before any command runs.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.BoolP("quiet", "q", false, "Suppress all but error logging")
	flags.Bool("json", false, "Emit logs as JSON instead of console format")
	flags.String("user-agent", "", "Override the browser user agent")
	flags.String("proxy", "", "Comma-separated proxy list; rotates when more than one is given")
	flags.String("timeout", "", "Navigation timeout, e.g. 30s")
	flags.Bool("headless", true, "Run the browser headless")
	flags.Int("max-repeats", 0, "Stop the run after the same rule carries out this many times in a row")
	flags.Int("max-concurrency", 0, "Maximum concurrent pages (popups, enqueueLinks jobs)")
	flags.String("mode", "", "Interpreter mode: \"\" or \"editor\" (skips scrapeSchema/scrapeList extraction)")
	flags.Float64("rate-limit-rps", 0, "Per-host requests/sec for crawl and search actions")
	flags.Int("rate-limit-burst", 0, "Per-host burst capacity for crawl and search actions")
	flags.Duration("cache-ttl", 0, "TTL for memoized scrapeSchema extractions")
	flags.Int64("cache-max-size", 0, "Max bytes held by the extraction cache")
	flags.String("session", "", "Named session to resume cookies from and persist to on exit")
}

// Load builds a Config by combining defaults, environment variables, and
// CLI flags. Caller should pass the root *cobra.Command so flags can be
// read.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := &Config{
		LogLevel:          DefaultLogLevel,
		JSONLog:           DefaultJSONLog,
		HTTPTimeout:       DefaultHTTPTimeout,
		UserAgent:         DefaultUserAgent,
		Headless:          DefaultBrowserHeadless,
		RateLimitRPS:      DefaultStaticRateLimitRPS,
		RateLimitBurst:    DefaultStaticRateLimitBurst,
		CacheTTL:          DefaultCacheTTL,
		CacheMaxSizeBytes: DefaultCacheMaxSizeBytes,
		MaxRepeats:        DefaultMaxRepeats,
		MaxConcurrency:    DefaultMaxConcurrency,
		Mode:              DefaultMode,
	}

	if v := os.Getenv("WORKFLOWRUNNER_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("WORKFLOWRUNNER_PROXY"); v != "" {
		cfg.Proxies = splitCSV(v)
		if len(cfg.Proxies) == 1 {
			cfg.Proxy = cfg.Proxies[0]
			cfg.Proxies = nil
		}
	}

	if cmd != nil {
		flags := cmd.Flags()
		if s, err := flags.GetString("user-agent"); err == nil && s != "" {
			cfg.UserAgent = s
		}
		if s, err := flags.GetString("proxy"); err == nil && s != "" {
			cfg.Proxies = splitCSV(s)
			if len(cfg.Proxies) == 1 {
				cfg.Proxy = cfg.Proxies[0]
				cfg.Proxies = nil
			}
		}
		if s, err := flags.GetString("timeout"); err == nil && s != "" {
			if d, derr := time.ParseDuration(s); derr == nil {
				cfg.HTTPTimeout = d
			}
		}
		if b, err := flags.GetBool("json"); err == nil && b {
			cfg.JSONLog = true
		}
		if b, err := flags.GetBool("verbose"); err == nil && b {
			cfg.LogLevel = "debug"
		}
		if b, err := flags.GetBool("quiet"); err == nil && b {
			cfg.LogLevel = "error"
		}
		if flags.Changed("headless") {
			if b, err := flags.GetBool("headless"); err == nil {
				cfg.Headless = b
			}
		}
		if flags.Changed("max-repeats") {
			if n, err := flags.GetInt("max-repeats"); err == nil && n > 0 {
				cfg.MaxRepeats = n
			}
		}
		if flags.Changed("max-concurrency") {
			if n, err := flags.GetInt("max-concurrency"); err == nil && n > 0 {
				cfg.MaxConcurrency = n
			}
		}
		if s, err := flags.GetString("mode"); err == nil && s != "" {
			cfg.Mode = s
		}
		if flags.Changed("rate-limit-rps") {
			if f, err := flags.GetFloat64("rate-limit-rps"); err == nil && f > 0 {
				cfg.RateLimitRPS = f
			}
		}
		if flags.Changed("rate-limit-burst") {
			if n, err := flags.GetInt("rate-limit-burst"); err == nil && n > 0 {
				cfg.RateLimitBurst = n
			}
		}
		if flags.Changed("cache-ttl") {
			if d, err := flags.GetDuration("cache-ttl"); err == nil && d > 0 {
				cfg.CacheTTL = d
			}
		}
		if flags.Changed("cache-max-size") {
			if n, err := flags.GetInt64("cache-max-size"); err == nil && n > 0 {
				cfg.CacheMaxSizeBytes = n
			}
		}
		if s, err := flags.GetString("session"); err == nil {
			cfg.Session = s
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
