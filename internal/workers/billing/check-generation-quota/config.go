// internal/workers/billing/check-generation-quota/config.go
package checkgenerationquota

import (
	"time"

	"ipo-compliance/internal/common/config"
)

type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

func LoadConfig(wc config.WorkerConfig) *Config {
	cfg := &Config{
		Timeout:  30 * time.Second,
		CacheTTL: 5 * time.Minute,
	}
	if wc.Timeout > 0 {
		cfg.Timeout = time.Duration(wc.Timeout) * time.Millisecond
	}
	return cfg
}
