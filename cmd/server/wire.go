//go:build wireinject
// +build wireinject

package main

import (
	"net/http"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/adobe/opentsdb-protector/internal/config"
	"github.com/adobe/opentsdb-protector/internal/protector"
	"github.com/adobe/opentsdb-protector/internal/proxyserver"
	"github.com/adobe/opentsdb-protector/internal/store"
	"github.com/adobe/opentsdb-protector/internal/telemetry"
)

// Application bundles the constructed HTTP server and its shutdown hook.
type Application struct {
	Server  *http.Server
	Cleanup func()
}

func initializeApplication(cfg *config.Config) (*Application, error) {
	wire.Build(
		store.ProviderSet,
		telemetry.ProviderSet,
		protector.ProviderSet,
		proxyserver.ProviderSet,

		provideHTTPServer,
		provideCleanup,

		wire.Struct(new(Application), "Server", "Cleanup"),
	)
	return nil, nil
}

func provideHTTPServer(cfg *config.Config, s *proxyserver.Server) *http.Server {
	return &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: s.Engine(),
	}
}

func provideCleanup(rdb *redis.Client) func() {
	return func() {
		_ = rdb.Close()
	}
}
