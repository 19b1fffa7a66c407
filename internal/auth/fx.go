package auth

import (
	"github.com/smallbiznis/quickcart/internal/auth/bearer"
	"github.com/smallbiznis/quickcart/internal/auth/repository"
	"github.com/smallbiznis/quickcart/internal/auth/service"
	"github.com/smallbiznis/quickcart/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(token.NewSigner),
	fx.Provide(bearer.NewManager),
	fx.Provide(service.New),
)
