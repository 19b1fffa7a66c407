package rbac

import (
	"github.com/smallbiznis/quickcart/internal/rbac/catalog"
	"github.com/smallbiznis/quickcart/internal/rbac/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("rbac",
	catalog.Module,
	fx.Provide(repository.NewRepository),
)
