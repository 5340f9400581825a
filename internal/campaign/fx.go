package campaign

import (
	"github.com/smallbiznis/merchline/internal/campaign/repository"
	"github.com/smallbiznis/merchline/internal/campaign/service"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewDispatcher),
	fx.Provide(service.New),
)
