package telemetry

import "github.com/google/wire"

// ProviderSet exposes Telemetry construction to wire.
var ProviderSet = wire.NewSet(New)
