package config

import "fmt"

func validate(c *Config) error {
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be > 0")
	}
	if c.CacheMaxSizeBytes <= 0 {
		return fmt.Errorf("cache max size must be > 0")
	}
	if c.MaxRepeats <= 0 {
		return fmt.Errorf("max repeats must be > 0")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be > 0")
	}
	if c.Mode != "" && c.Mode != "editor" {
		return fmt.Errorf("mode must be \"\" or \"editor\"")
	}
	return nil
}
