package account

import (
	"github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/account/repository"
	"github.com/smallbiznis/merchline/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(domain.NewMembershipEvents),
	fx.Provide(service.New),
)
