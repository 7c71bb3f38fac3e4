// internal/workers/compliance/reconcile-analysis-status/config.go
package reconcileanalysisstatus

import (
	"time"

	"ipo-compliance/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig applies the worker's settings over its defaults. The timeout covers login,
// report fetches and scoring.
func LoadConfig(wc config.WorkerConfig) *Config {
	cfg := &Config{Timeout: 11 * time.Minute}
	if wc.Timeout > 0 {
		cfg.Timeout = time.Duration(wc.Timeout) * time.Millisecond
	}
	return cfg
}
