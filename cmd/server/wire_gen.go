// Hand-written equivalent of the injector Wire would generate from wire.go.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package main

import (
	"net/http"

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

// initializeApplication wires every component by hand, mirroring the
// dependency graph declared in wire.go.
func initializeApplication(cfg *config.Config) (*Application, error) {
	rdb := store.NewRedisClient(cfg)
	statsStore := store.NewRedisStore(rdb)

	tel := telemetry.New()

	protectorCfg := protector.NewConfigFromAppConfig(cfg)
	p, err := protector.New(protectorCfg, statsStore, tel)
	if err != nil {
		return nil, err
	}

	serverOpts := proxyserver.NewOptionsFromAppConfig(cfg)
	srv := proxyserver.New(serverOpts, p, tel)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv.Engine(),
	}

	cleanup := func() {
		_ = rdb.Close()
	}

	return &Application{Server: httpServer, Cleanup: cleanup}, nil
}
