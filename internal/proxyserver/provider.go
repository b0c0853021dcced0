package proxyserver

import (
	"time"

	"github.com/google/wire"

	"github.com/adobe/opentsdb-protector/internal/config"
)

// ProviderSet exposes Server construction to wire.
var ProviderSet = wire.NewSet(NewOptionsFromAppConfig, New)

// NewOptionsFromAppConfig translates the application config into Options.
func NewOptionsFromAppConfig(cfg *config.Config) Options {
	return Options{
		BackendHost: cfg.BackendHost,
		BackendPort: cfg.BackendPort,
		Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		SafeMode:    cfg.SafeMode,
	}
}
