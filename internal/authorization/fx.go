package authorization

import (
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	"github.com/smallbiznis/quickcart/internal/authorization/domain"
	"github.com/smallbiznis/quickcart/internal/authorization/repository"
	"github.com/smallbiznis/quickcart/internal/authorization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("authorization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(membershipChecker),
	fx.Provide(service.NewService),
)

// membershipChecker lets role selection reuse the membership reads.
func membershipChecker(repo domain.Repository) authdomain.MembershipChecker {
	return repo
}
