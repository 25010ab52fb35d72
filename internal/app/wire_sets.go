//go:build wireinject
// +build wireinject

package app

import "github.com/google/wire"

var CoreInfraSet = wire.NewSet(
	NewConfigLoader,
	LoadConfig,
	NewLogger,
	NewMetricsRegistry,
	NewMetrics,
)

var CatalogSet = wire.NewSet(
	NewRegistry,
	NewCatalog,
	NewAdapter,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	CatalogSet,
	wire.Struct(new(ApplicationOptions), "*"),
	NewApplication,
)
