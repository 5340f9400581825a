package accesscontrol

import (
	"github.com/smallbiznis/merchline/internal/accesscontrol/repository"
	"github.com/smallbiznis/merchline/internal/accesscontrol/service"
	"go.uber.org/fx"
)

var Module = fx.Module("accesscontrol.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
