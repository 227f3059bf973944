package module

import (
	"time"

	"onehub/internal/platform/config"
)

// Options configures the requirements module
type Options struct {
	MaxPageSize int
	CacheTTL    time.Duration
}

// FromConfig reads options from config.Conf
func FromConfig(cfg config.Conf) Options {
	rf := cfg.Prefix("REQUIREMENTS_")
	return Options{
		MaxPageSize: rf.MayInt("MAX_PAGE_SIZE", 100),
		CacheTTL:    rf.MayDuration("CACHE_TTL", 5*time.Minute),
	}
}
