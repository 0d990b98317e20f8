package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel              = "info"
	DefaultJSONLog               = false
	DefaultUserAgent             = "WorkflowRunner/1.0 (+https://github.com/use-agent/workflowrunner)"
	DefaultHTTPTimeout           = 30 * time.Second
	DefaultStaticRateLimitRPS    = 5.0
	DefaultStaticRateLimitBurst  = 10
	DefaultBrowserHeadless       = true
	DefaultCacheTTL              = 5 * time.Minute
	DefaultCacheMaxSizeBytes     = 100 * 1024 * 1024 // 100MB
	DefaultMaxRepeats            = 5
	DefaultMaxConcurrency        = 5
	DefaultMode                  = ""
)
