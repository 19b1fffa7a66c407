package catalog

import "go.uber.org/fx"

var Module = fx.Module("rbac.catalog",
	fx.Provide(NewEnforcer),
	fx.Provide(New),
)
